package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore applies each lifecycle operation as one transaction. The legacy
// system wrote these as independent statements and could strand partial
// results; here a failure anywhere rolls the whole operation back.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) BookAppointment(ctx context.Context, appt Appointment, procs []AppointmentProcedure, deletedRefs []uuid.UUID) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(provider_id, site_id, mrn, start_at, duration_min, status, active,
			 reason, notes, reschedule_of, by_provider, patient_notify_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING id
	`, appt.ProviderID, appt.SiteID, appt.MRN, appt.StartAt, appt.DurationMin,
		appt.Status, appt.Active, appt.Reason, appt.Notes, appt.RescheduleOfID,
		appt.ByProvider, appt.PatientNotifyID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert appointment: %w", err)
	}

	if err := reconcileProcedures(ctx, tx, id, procs, deletedRefs); err != nil {
		return 0, err
	}

	if appt.PatientNotifyID != nil {
		if err := insertNotification(ctx, tx, id, *appt.PatientNotifyID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (s *PgStore) UpdateAppointment(ctx context.Context, appt Appointment, procs []AppointmentProcedure, deletedRefs []uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET provider_id = $2, site_id = $3, mrn = $4, start_at = $5,
		    duration_min = $6, reason = $7, notes = $8, by_provider = $9,
		    patient_notify_id = $10, updated_at = now()
		WHERE id = $1
	`, appt.ID, appt.ProviderID, appt.SiteID, appt.MRN, appt.StartAt,
		appt.DurationMin, appt.Reason, appt.Notes, appt.ByProvider,
		appt.PatientNotifyID)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	if err := reconcileProcedures(ctx, tx, appt.ID, procs, deletedRefs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PgStore) RescheduleAppointment(ctx context.Context, oldID int64, oldStatus AppointmentStatus, replacement Appointment, procs []AppointmentProcedure) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var newID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(provider_id, site_id, mrn, start_at, duration_min, status, active,
			 reason, notes, reschedule_of, by_provider, patient_notify_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING id
	`, replacement.ProviderID, replacement.SiteID, replacement.MRN,
		replacement.StartAt, replacement.DurationMin, replacement.Status,
		replacement.Active, replacement.Reason, replacement.Notes,
		replacement.RescheduleOfID, replacement.ByProvider,
		replacement.PatientNotifyID).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("insert replacement: %w", err)
	}

	if err := reconcileProcedures(ctx, tx, newID, procs, nil); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, oldID, oldStatus)
	if err != nil {
		return 0, fmt.Errorf("update old appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Rolls back the replacement insert as well.
		return 0, ErrAppointmentNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newID, nil
}

func (s *PgStore) CancelAppointment(ctx context.Context, id int64, reason string, patientNotifyID *int64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, reason = $3, updated_at = now()
		WHERE id = $1 AND status <> $2
	`, id, StatusCancelled, reason)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Missing or already cancelled; not an error.
		return false, nil
	}

	if patientNotifyID != nil {
		if err := insertNotification(ctx, tx, id, *patientNotifyID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *PgStore) ClaimPendingNotifications(ctx context.Context, limit int) ([]PatientNotification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, appointment_id, notify_ref, status, created_at, dispatched_at
		FROM patient_notifications
		WHERE status = 'pending'
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []PatientNotification
	for rows.Next() {
		var n PatientNotification
		err := rows.Scan(&n.ID, &n.AppointmentID, &n.NotifyRef, &n.Status,
			&n.CreatedAt, &n.DispatchedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PgStore) MarkNotificationDispatched(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE patient_notifications
		SET status = 'dispatched', dispatched_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("mark notification dispatched: %w", err)
	}
	return nil
}

// reconcileProcedures applies the idempotent retry cue: a procedure carrying
// a non-zero id updates the existing line item, a zero id inserts a new one.
// Deletions go by the external reference the surrounding portal hands out.
func reconcileProcedures(ctx context.Context, tx pgx.Tx, appointmentID int64, procs []AppointmentProcedure, deletedRefs []uuid.UUID) error {
	for _, p := range procs {
		if p.ID != 0 {
			_, err := tx.Exec(ctx, `
				UPDATE appointment_procedures
				SET code = $2, name = $3, location = $4,
				    start_offset_min = $5, duration_min = $6
				WHERE id = $1 AND appointment_id = $7
			`, p.ID, p.Code, p.Name, p.Location, p.StartOffsetMin,
				p.DurationMin, appointmentID)
			if err != nil {
				return fmt.Errorf("update procedure %d: %w", p.ID, err)
			}
			continue
		}

		ref := p.ExternalRef
		if ref == uuid.Nil {
			ref = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_procedures
				(appointment_id, external_ref, code, name, location,
				 start_offset_min, duration_min)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, appointmentID, ref, p.Code, p.Name, p.Location,
			p.StartOffsetMin, p.DurationMin)
		if err != nil {
			return fmt.Errorf("insert procedure %s: %w", p.Code, err)
		}
	}

	for _, ref := range deletedRefs {
		_, err := tx.Exec(ctx, `
			DELETE FROM appointment_procedures
			WHERE external_ref = $1 AND appointment_id = $2
		`, ref, appointmentID)
		if err != nil {
			return fmt.Errorf("delete procedure %s: %w", ref, err)
		}
	}

	return nil
}

func insertNotification(ctx context.Context, tx pgx.Tx, appointmentID, notifyRef int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO patient_notifications
			(appointment_id, notify_ref, status, created_at)
		VALUES ($1, $2, 'pending', now())
	`, appointmentID, notifyRef)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
