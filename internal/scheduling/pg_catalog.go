package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgCatalog reads schedule, holiday, block and appointment rows through
// explicit typed scans. No dynamic row mapping anywhere.
type PgCatalog struct {
	pool *pgxpool.Pool
}

func NewPgCatalog(pool *pgxpool.Pool) *PgCatalog {
	return &PgCatalog{pool: pool}
}

// Helpers

func scanSchedule(rows pgx.Rows) (ProviderSchedule, error) {
	var s ProviderSchedule
	err := rows.Scan(
		&s.ID,
		&s.ProviderID,
		&s.SiteID,
		&s.StartTime,
		&s.EndTime,
		&s.WeekdayMask,
		&s.BreakStart,
		&s.BreakEnd,
		&s.ValidFrom,
		&s.ValidTo,
		&s.Priority,
		&s.Active,
	)
	return s, err
}

func scanHoliday(rows pgx.Rows) (Holiday, error) {
	var h Holiday
	err := rows.Scan(
		&h.ID,
		&h.Year,
		&h.MonthDay,
		&h.SiteID,
		&h.StartTime,
		&h.EndTime,
		&h.Active,
	)
	return h, err
}

func scanBlockedTimeslot(rows pgx.Rows) (BlockedTimeslot, error) {
	var b BlockedTimeslot
	err := rows.Scan(
		&b.ID,
		&b.ProviderID,
		&b.SiteID,
		&b.StartAt,
		&b.Reason,
	)
	return b, err
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.SiteID,
		&a.MRN,
		&a.StartAt,
		&a.DurationMin,
		&a.Status,
		&a.Active,
		&a.Reason,
		&a.Notes,
		&a.RescheduleOfID,
		&a.ByProvider,
		&a.PatientNotifyID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const appointmentColumns = `
	id, provider_id, site_id, mrn, start_at, duration_min, status, active,
	reason, notes, reschedule_of, by_provider, patient_notify_id,
	created_at, updated_at`

// Interface methods

// ResolveProvider accepts either an internal provider id or an NPI. NPIs are
// ten-digit numeric strings, so a numeric input that misses the id column is
// retried against npi before giving up.
func (c *PgCatalog) ResolveProvider(ctx context.Context, idOrNPI string) (int64, error) {
	if n, err := strconv.ParseInt(idOrNPI, 10, 64); err == nil {
		var id int64
		err := c.pool.QueryRow(ctx, `
			SELECT id FROM providers WHERE id = $1
		`, n).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("resolve provider by id: %w", err)
		}
	}

	var id int64
	err := c.pool.QueryRow(ctx, `
		SELECT id FROM providers WHERE npi = $1
	`, idOrNPI).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProviderNotFound
		}
		return 0, fmt.Errorf("resolve provider by npi: %w", err)
	}
	return id, nil
}

func (c *PgCatalog) GetSchedules(ctx context.Context, providerID int64, from, to time.Time) ([]ProviderSchedule, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, provider_id, site_id, start_time, end_time, weekday_mask,
		       break_start, break_end, valid_from, valid_to, priority, active
		FROM provider_schedules
		WHERE provider_id = $1
		  AND active
		  AND (valid_from IS NULL OR valid_from <= $3)
		  AND (valid_to IS NULL OR valid_to >= $2)
		ORDER BY priority ASC, id ASC
	`, providerID, truncateToDay(from), truncateToDay(to))
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []ProviderSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *PgCatalog) GetHolidays(ctx context.Context, year int, monthDay string, siteID int64) ([]Holiday, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, year, month_day, site_id, start_time, end_time, active
		FROM holidays
		WHERE active
		  AND year = $1
		  AND month_day = $2
		  AND (site_id = $3 OR site_id = -1)
		ORDER BY id ASC
	`, year, monthDay, siteID)
	if err != nil {
		return nil, fmt.Errorf("query holidays: %w", err)
	}
	defer rows.Close()

	var out []Holiday
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (c *PgCatalog) GetBlockedTimeslots(ctx context.Context, providerID int64, date time.Time, siteID int64) ([]BlockedTimeslot, error) {
	day := truncateToDay(date)
	rows, err := c.pool.Query(ctx, `
		SELECT id, provider_id, site_id, start_at, reason
		FROM blocked_timeslots
		WHERE provider_id = $1
		  AND start_at >= $2 AND start_at < $3
		  AND ($4 = -1 OR site_id = $4)
		ORDER BY start_at ASC
	`, providerID, day, day.AddDate(0, 0, 1), siteID)
	if err != nil {
		return nil, fmt.Errorf("query blocked timeslots: %w", err)
	}
	defer rows.Close()

	var out []BlockedTimeslot
	for rows.Next() {
		b, err := scanBlockedTimeslot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocked timeslot: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (c *PgCatalog) GetExistingAppointments(ctx context.Context, providerID int64, date time.Time, siteID int64) ([]Appointment, error) {
	day := truncateToDay(date)
	rows, err := c.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND active
		  AND status = $2
		  AND start_at >= $3 AND start_at < $4
		  AND ($5 = -1 OR site_id = $5)
		ORDER BY start_at ASC
	`, providerID, StatusScheduled, day, day.AddDate(0, 0, 1), siteID)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		err := rows.Scan(
			&a.ID,
			&a.ProviderID,
			&a.SiteID,
			&a.MRN,
			&a.StartAt,
			&a.DurationMin,
			&a.Status,
			&a.Active,
			&a.Reason,
			&a.Notes,
			&a.RescheduleOfID,
			&a.ByProvider,
			&a.PatientNotifyID,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *PgCatalog) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}
