package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Catalog is the read side of the engine: recurring schedules, holidays,
// ad-hoc blocks, and booked appointments. It never mutates anything and
// never swallows errors.
type Catalog interface {
	// ResolveProvider accepts either the numeric provider id or an NPI
	// alias and returns the internal id.
	ResolveProvider(ctx context.Context, idOrNPI string) (int64, error)

	// GetSchedules returns active schedules whose validity range intersects
	// [from, to], ordered by priority ascending.
	GetSchedules(ctx context.Context, providerID int64, from, to time.Time) ([]ProviderSchedule, error)

	// GetHolidays returns active holidays for the year/month-day, scoped to
	// the site or to the all-sites sentinel.
	GetHolidays(ctx context.Context, year int, monthDay string, siteID int64) ([]Holiday, error)

	// GetBlockedTimeslots returns blocks for that exact calendar date.
	GetBlockedTimeslots(ctx context.Context, providerID int64, date time.Time, siteID int64) ([]BlockedTimeslot, error)

	// GetExistingAppointments returns active Scheduled-status appointments
	// for the provider on the date. Pass SiteAll to span every site.
	GetExistingAppointments(ctx context.Context, providerID int64, date time.Time, siteID int64) ([]Appointment, error)

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
}

// Store is the write side, used only by the lifecycle. Each method is one
// logical operation and must apply atomically.
type Store interface {
	// BookAppointment inserts the appointment in Scheduled state, reconciles
	// procedures (non-zero id updates, zero id inserts), deletes procedures
	// named in deletedRefs, and records notification bookkeeping.
	BookAppointment(ctx context.Context, appt Appointment, procs []AppointmentProcedure, deletedRefs []uuid.UUID) (int64, error)

	// UpdateAppointment applies fields and the same procedure reconciliation
	// to an existing row. Returns ErrAppointmentNotFound if the id does not
	// resolve.
	UpdateAppointment(ctx context.Context, appt Appointment, procs []AppointmentProcedure, deletedRefs []uuid.UUID) error

	// RescheduleAppointment inserts the replacement row and flips the old
	// row to the given status in one transaction, linking the two.
	RescheduleAppointment(ctx context.Context, oldID int64, oldStatus AppointmentStatus, replacement Appointment, procs []AppointmentProcedure) (int64, error)

	// CancelAppointment sets status to Cancelled. Returns false when the row
	// does not exist or is already cancelled; that is not an error.
	CancelAppointment(ctx context.Context, id int64, reason string, patientNotifyID *int64) (bool, error)

	// Notification dispatch, consumed by the notify worker.
	ClaimPendingNotifications(ctx context.Context, limit int) ([]PatientNotification, error)
	MarkNotificationDispatched(ctx context.Context, id int64) error
}

// PatientNotification is the bookkeeping row written when a lifecycle
// operation requests patient notification.
type PatientNotification struct {
	ID            int64
	AppointmentID int64
	NotifyRef     int64
	Status        string // pending, dispatched
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
