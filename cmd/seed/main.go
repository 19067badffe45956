package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medport/scheduling-service/internal/db"
	"github.com/medport/scheduling-service/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	siteIDs, err := seedSites(context.Background(), pool, 5)
	if err != nil {
		log.Fatalf("seed sites: %v", err)
	}
	providerIDs, err := seedProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedSchedules(context.Background(), pool, providerIDs, siteIDs); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}
	if err := seedHolidays(context.Background(), pool); err != nil {
		log.Fatalf("seed holidays: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, providerIDs, siteIDs, 500); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedSites(ctx context.Context, pool *pgxpool.Pool, count int) ([]int64, error) {
	log.Printf("seeding %d sites", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var ids []int64
	for i := 0; i < count; i++ {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO sites (name)
			VALUES ($1)
			RETURNING id
		`, gofakeit.City()+" Clinic").Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]int64, error) {
	log.Printf("seeding %d providers", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var ids []int64
	for i := 0; i < count; i++ {
		npi := fmt.Sprintf("%010d", gofakeit.Number(1000000000, 1999999999))
		name := "Dr. " + gofakeit.Name()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO providers (npi, name, specialty)
			VALUES ($1, $2, $3)
			RETURNING id
		`, npi, name, specialty).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedSchedules(ctx context.Context, pool *pgxpool.Pool, providerIDs, siteIDs []int64) error {
	log.Printf("seeding schedules for %d providers", len(providerIDs))

	weekdays := scheduling.MaskMonday | scheduling.MaskTuesday |
		scheduling.MaskWednesday | scheduling.MaskThursday | scheduling.MaskFriday

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pid := range providerIDs {
		site := siteIDs[gofakeit.Number(0, len(siteIDs)-1)]

		// Morning clinic with a mid-morning break.
		_, err := tx.Exec(ctx, `
			INSERT INTO provider_schedules
				(provider_id, site_id, start_time, end_time, weekday_mask,
				 break_start, break_end, priority, active)
			VALUES ($1, $2, '08:00', '12:00', $3, '10:00', '10:30', 1, true)
		`, pid, site, weekdays)
		if err != nil {
			return err
		}

		// Afternoon clinic for roughly half the providers.
		if gofakeit.Bool() {
			_, err := tx.Exec(ctx, `
				INSERT INTO provider_schedules
					(provider_id, site_id, start_time, end_time, weekday_mask,
					 priority, active)
				VALUES ($1, $2, '13:00', '17:00', $3, 2, true)
			`, pid, site, weekdays)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("schedules seeded")
	return nil
}

func seedHolidays(ctx context.Context, pool *pgxpool.Pool) error {
	year := time.Now().Year()
	monthDays := []string{"0101", "0704", "1124", "1225"}

	log.Printf("seeding %d holidays for %d", len(monthDays), year)

	for _, md := range monthDays {
		_, err := pool.Exec(ctx, `
			INSERT INTO holidays (year, month_day, site_id, active)
			VALUES ($1, $2, -1, true)
		`, year, md)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, providerIDs, siteIDs []int64, count int) error {
	log.Printf("seeding %d appointments", count)

	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			pid := providerIDs[gofakeit.Number(0, len(providerIDs)-1)]
			site := siteIDs[gofakeit.Number(0, len(siteIDs)-1)]
			mrn := fmt.Sprintf("MRN%08d", gofakeit.Number(1, 99999999))

			// Weekday mornings over the next two weeks, aligned to 15 min.
			day := time.Now().AddDate(0, 0, gofakeit.Number(1, 14))
			for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				day = day.AddDate(0, 0, 1)
			}
			start := time.Date(day.Year(), day.Month(), day.Day(),
				gofakeit.Number(8, 11), 15*gofakeit.Number(0, 3), 0, 0, time.Local)
			duration := 15 * gofakeit.Number(1, 4)

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments
					(provider_id, site_id, mrn, start_at, duration_min, status,
					 active, reason, notes, by_provider, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, true, $7, '', false, now(), now())
			`, pid, site, mrn, start, duration, scheduling.StatusScheduled,
				gofakeit.Sentence(4))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("appointments seeded")
	return nil
}
