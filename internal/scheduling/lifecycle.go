package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/medport/scheduling-service/internal/redis"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrBookingContended = errors.New("provider calendar is being booked, please retry")
	ErrPastReschedule   = errors.New("reschedule target is in the past")
)

// ConflictError reports an overlap rejected because overbooking was not
// allowed.
type ConflictError struct {
	Count  int
	SiteID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("appointment conflicts with %d existing appointment(s) at site %d", e.Count, e.SiteID)
}

// Lifecycle drives appointments through Scheduled, Rescheduled and Cancelled.
// Rescheduled and Cancelled are terminal for a row; a reschedule always
// creates a fresh Scheduled row linked back to the old one. Lifecycle is the
// only writer in the engine.
type Lifecycle struct {
	catalog Catalog
	store   Store
	checker *AvailabilityChecker
	locker  redisclient.Locker
	log     zerolog.Logger
}

func NewLifecycle(catalog Catalog, store Store, checker *AvailabilityChecker, locker redisclient.Locker, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		catalog: catalog,
		store:   store,
		checker: checker,
		locker:  locker,
		log:     log,
	}
}

type BookRequest struct {
	Appointment          Appointment
	Procedures           []AppointmentProcedure
	DeletedProcedureRefs []uuid.UUID
	AllowOverBooking     bool
	IsUMC                bool
}

// Book validates the request, then serializes the availability check and the
// insert under a per-provider per-day lock so two concurrent bookings cannot
// both pass the check. The insert plus procedure reconciliation plus
// notification bookkeeping is one transaction in the store.
func (l *Lifecycle) Book(ctx context.Context, req BookRequest) (int64, error) {
	if err := validateAppointment(req.Appointment); err != nil {
		return 0, err
	}

	appt := req.Appointment
	appt.Status = StatusScheduled
	appt.Active = true

	var newID int64
	err := l.locker.WithCalendarLock(ctx, appt.ProviderID, appt.StartAt, func(lockCtx context.Context) error {
		check, err := l.checker.Check(lockCtx, AvailabilityRequest{
			ProviderID:       appt.ProviderID,
			LocationTypeID:   appt.SiteID,
			Start:            appt.StartAt,
			DurationMin:      appt.DurationMin,
			AllowOverBooking: req.AllowOverBooking,
			IsUMC:            req.IsUMC,
		})
		if err != nil {
			return fmt.Errorf("availability check: %w", err)
		}
		if !check.Allowed {
			return &ConflictError{Count: check.ConflictCount, SiteID: check.ConflictSiteID}
		}

		newID, err = l.store.BookAppointment(lockCtx, appt, req.Procedures, req.DeletedProcedureRefs)
		if err != nil {
			return fmt.Errorf("book appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return 0, ErrBookingContended
		}
		return 0, err
	}

	l.log.Info().
		Int64("appointment_id", newID).
		Int64("provider_id", appt.ProviderID).
		Time("start_at", appt.StartAt).
		Msg("appointment booked")

	return newID, nil
}

// Update applies new fields and procedure reconciliation to an existing row.
func (l *Lifecycle) Update(ctx context.Context, appt Appointment, procs []AppointmentProcedure, deletedRefs []uuid.UUID) error {
	if appt.ID == 0 {
		return fmt.Errorf("%w: appointment id required", ErrInvalidInput)
	}
	if err := validateAppointment(appt); err != nil {
		return err
	}
	if _, err := l.catalog.GetAppointmentByID(ctx, appt.ID); err != nil {
		return err
	}
	if err := l.store.UpdateAppointment(ctx, appt, procs, deletedRefs); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

type RescheduleRequest struct {
	OldAppointmentID int64
	Replacement      Appointment
	Procedures       []AppointmentProcedure
	// OldStatusOverride lets the caller pick a status code other than
	// Rescheduled for the old row. Zero means default.
	OldStatusOverride AppointmentStatus
}

type RescheduleResult struct {
	OldAppointmentID int64
	OldStatus        AppointmentStatus
	NewAppointmentID int64
}

// Reschedule inserts the replacement row in Scheduled state and flips the old
// row to Rescheduled in one transaction, so a failure on the old row cannot
// strand an orphaned replacement. The byProvider flag carries over from the
// old row and the rows are linked for audit traceability.
func (l *Lifecycle) Reschedule(ctx context.Context, req RescheduleRequest) (RescheduleResult, error) {
	if req.OldAppointmentID == 0 {
		return RescheduleResult{}, fmt.Errorf("%w: old appointment id required", ErrInvalidInput)
	}
	if err := validateAppointment(req.Replacement); err != nil {
		return RescheduleResult{}, err
	}
	if req.Replacement.StartAt.Before(time.Now()) {
		return RescheduleResult{}, ErrPastReschedule
	}

	old, err := l.catalog.GetAppointmentByID(ctx, req.OldAppointmentID)
	if err != nil {
		return RescheduleResult{}, err
	}

	oldStatus := req.OldStatusOverride
	if oldStatus == 0 {
		oldStatus = StatusRescheduled
	}

	replacement := req.Replacement
	replacement.Status = StatusScheduled
	replacement.Active = true
	replacement.ByProvider = old.ByProvider
	oldID := old.ID
	replacement.RescheduleOfID = &oldID

	newID, err := l.store.RescheduleAppointment(ctx, old.ID, oldStatus, replacement, req.Procedures)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("reschedule appointment: %w", err)
	}

	l.log.Info().
		Int64("old_appointment_id", old.ID).
		Int64("new_appointment_id", newID).
		Msg("appointment rescheduled")

	return RescheduleResult{
		OldAppointmentID: old.ID,
		OldStatus:        oldStatus,
		NewAppointmentID: newID,
	}, nil
}

type CancelResult struct {
	AppointmentID int64
	NewStatus     AppointmentStatus
	Success       bool
}

const defaultCancelReason = "cancelled at patient request"

// Cancel sets the row to Cancelled. A missing or already-cancelled row yields
// Success=false, not an error.
func (l *Lifecycle) Cancel(ctx context.Context, id int64, reason string, patientNotifyID *int64) (CancelResult, error) {
	if id == 0 {
		return CancelResult{}, fmt.Errorf("%w: appointment id required", ErrInvalidInput)
	}
	if reason == "" {
		reason = defaultCancelReason
	}

	ok, err := l.store.CancelAppointment(ctx, id, reason, patientNotifyID)
	if err != nil {
		return CancelResult{}, fmt.Errorf("cancel appointment: %w", err)
	}

	if ok {
		l.log.Info().Int64("appointment_id", id).Msg("appointment cancelled")
	}

	return CancelResult{
		AppointmentID: id,
		NewStatus:     StatusCancelled,
		Success:       ok,
	}, nil
}

func (l *Lifecycle) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return l.catalog.GetAppointmentByID(ctx, id)
}

func validateAppointment(a Appointment) error {
	if a.ProviderID == 0 {
		return fmt.Errorf("%w: provider id required", ErrInvalidInput)
	}
	if a.MRN == "" {
		return fmt.Errorf("%w: mrn required", ErrInvalidInput)
	}
	if a.DurationMin <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	if a.StartAt.IsZero() {
		return fmt.Errorf("%w: start time required", ErrInvalidInput)
	}
	return nil
}
