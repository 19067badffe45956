package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/medport/scheduling-service/internal/db"
	"github.com/medport/scheduling-service/internal/scheduling"
)

// simulate fires concurrent booking requests at one provider's calendar to
// observe the lock behavior: overlapping requests must either serialize into
// conflicts or, with overbooking enabled, ask for confirmation.

type simConfig struct {
	APIBaseURL  string
	Workers     int
	Requests    int
	Overbook    bool
	PostgresDSN string
}

type counters struct {
	created   atomic.Int64
	conflicts atomic.Int64
	contended atomic.Int64
	failures  atomic.Int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{
		APIBaseURL:  getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Workers:     getEnvInt("SIM_WORKERS", 8),
		Requests:    getEnvInt("SIM_REQUESTS", 200),
		Overbook:    os.Getenv("SIM_OVERBOOK") == "1",
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	providerID, err := pickProvider(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("pick provider: %v", err)
	}
	log.Printf("simulating %d requests over %d workers against provider %d (overbook=%v)",
		cfg.Requests, cfg.Workers, providerID, cfg.Overbook)

	// Next Monday morning, so every request lands on a bookable weekday.
	day := time.Now().AddDate(0, 0, 1)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}

	var c counters
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			for range jobs {
				bookOnce(client, cfg, providerID, day, &c)
			}
		}()
	}

	start := time.Now()
	for i := 0; i < cfg.Requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	log.Printf("done in %s: created=%d conflicts=%d contended=%d failures=%d",
		time.Since(start), c.created.Load(), c.conflicts.Load(),
		c.contended.Load(), c.failures.Load())
}

func bookOnce(client *http.Client, cfg simConfig, providerID int64, day time.Time, c *counters) {
	// All requests target the same narrow window to force overlaps.
	start := time.Date(day.Year(), day.Month(), day.Day(),
		9, 15*rand.Intn(4), 0, 0, time.Local)

	payload := map[string]any{
		"appointment": map[string]any{
			"providerId":      providerID,
			"siteId":          1,
			"mrn":             fmt.Sprintf("MRN%08d", rand.Intn(99999999)),
			"startAt":         scheduling.FormatLegacy(start),
			"durationMinutes": 30,
			"reason":          "simulated booking",
		},
		"allowOverBooking": cfg.Overbook,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.failures.Add(1)
		return
	}

	resp, err := client.Post(cfg.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		c.failures.Add(1)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.created.Add(1)
	case http.StatusConflict:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "calendar_being_booked" {
			c.contended.Add(1)
		} else {
			c.conflicts.Add(1)
		}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.failures.Add(1)
	}
}

func pickProvider(dsn string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return 0, err
	}
	defer pool.Close()

	var id int64
	err = pool.QueryRow(ctx, `SELECT id FROM providers ORDER BY id LIMIT 1`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
