package scheduling

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo backs both Catalog and Store for tests: plain slices and maps, no
// database.
type fakeRepo struct {
	mu sync.Mutex

	providers  map[string]int64 // npi -> id
	schedules  []ProviderSchedule
	holidays   []Holiday
	blocks     []BlockedTimeslot
	appts      map[int64]*Appointment
	procs      map[int64][]AppointmentProcedure
	notifs     []PatientNotification
	nextApptID int64
	nextProcID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		providers: make(map[string]int64),
		appts:     make(map[int64]*Appointment),
		procs:     make(map[int64][]AppointmentProcedure),
	}
}

func (f *fakeRepo) addAppointment(a Appointment) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextApptID++
	a.ID = f.nextApptID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	f.appts[a.ID] = &a
	return a.ID
}

// Catalog

func (f *fakeRepo) ResolveProvider(_ context.Context, idOrNPI string) (int64, error) {
	if n, err := strconv.ParseInt(idOrNPI, 10, 64); err == nil {
		return n, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.providers[idOrNPI]; ok {
		return id, nil
	}
	return 0, ErrProviderNotFound
}

func (f *fakeRepo) GetSchedules(_ context.Context, providerID int64, from, to time.Time) ([]ProviderSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ProviderSchedule
	for _, s := range f.schedules {
		if s.ProviderID != providerID || !s.Active {
			continue
		}
		if s.ValidFrom != nil && s.ValidFrom.After(to) {
			continue
		}
		if s.ValidTo != nil && s.ValidTo.Before(from) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRepo) GetHolidays(_ context.Context, year int, monthDay string, siteID int64) ([]Holiday, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Holiday
	for _, h := range f.holidays {
		if !h.Active || h.Year != year || h.MonthDay != monthDay {
			continue
		}
		if h.SiteID != SiteAll && h.SiteID != siteID {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeRepo) GetBlockedTimeslots(_ context.Context, providerID int64, date time.Time, siteID int64) ([]BlockedTimeslot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := truncateToDay(date)
	var out []BlockedTimeslot
	for _, b := range f.blocks {
		if b.ProviderID != providerID {
			continue
		}
		if !truncateToDay(b.StartAt).Equal(day) {
			continue
		}
		if siteID != SiteAll && b.SiteID != siteID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeRepo) GetExistingAppointments(_ context.Context, providerID int64, date time.Time, siteID int64) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := truncateToDay(date)
	var out []Appointment
	for _, a := range f.appts {
		if a.ProviderID != providerID || !a.Occupies() {
			continue
		}
		if !truncateToDay(a.StartAt).Equal(day) {
			continue
		}
		if siteID != SiteAll && a.SiteID != siteID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeRepo) GetAppointmentByID(_ context.Context, id int64) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

// Store

func (f *fakeRepo) BookAppointment(_ context.Context, appt Appointment, procs []AppointmentProcedure, deletedRefs []uuid.UUID) (int64, error) {
	id := f.addAppointment(appt)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconcileLocked(id, procs, deletedRefs)
	if appt.PatientNotifyID != nil {
		f.notifs = append(f.notifs, PatientNotification{
			ID:            int64(len(f.notifs) + 1),
			AppointmentID: id,
			NotifyRef:     *appt.PatientNotifyID,
			Status:        "pending",
			CreatedAt:     time.Now(),
		})
	}
	return id, nil
}

func (f *fakeRepo) UpdateAppointment(_ context.Context, appt Appointment, procs []AppointmentProcedure, deletedRefs []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.appts[appt.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.Status = existing.Status
	appt.Active = existing.Active
	appt.CreatedAt = existing.CreatedAt
	appt.UpdatedAt = time.Now()
	f.appts[appt.ID] = &appt
	f.reconcileLocked(appt.ID, procs, deletedRefs)
	return nil
}

func (f *fakeRepo) RescheduleAppointment(_ context.Context, oldID int64, oldStatus AppointmentStatus, replacement Appointment, procs []AppointmentProcedure) (int64, error) {
	f.mu.Lock()
	old, ok := f.appts[oldID]
	f.mu.Unlock()
	if !ok {
		return 0, ErrAppointmentNotFound
	}

	newID := f.addAppointment(replacement)

	f.mu.Lock()
	defer f.mu.Unlock()
	old.Status = oldStatus
	old.UpdatedAt = time.Now()
	f.reconcileLocked(newID, procs, nil)
	return newID, nil
}

func (f *fakeRepo) CancelAppointment(_ context.Context, id int64, reason string, patientNotifyID *int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || a.Status == StatusCancelled {
		return false, nil
	}
	a.Status = StatusCancelled
	a.Reason = reason
	a.UpdatedAt = time.Now()
	if patientNotifyID != nil {
		f.notifs = append(f.notifs, PatientNotification{
			ID:            int64(len(f.notifs) + 1),
			AppointmentID: id,
			NotifyRef:     *patientNotifyID,
			Status:        "pending",
			CreatedAt:     time.Now(),
		})
	}
	return true, nil
}

func (f *fakeRepo) ClaimPendingNotifications(_ context.Context, limit int) ([]PatientNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PatientNotification
	for _, n := range f.notifs {
		if n.Status != "pending" {
			continue
		}
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkNotificationDispatched(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifs {
		if f.notifs[i].ID == id && f.notifs[i].Status == "pending" {
			now := time.Now()
			f.notifs[i].Status = "dispatched"
			f.notifs[i].DispatchedAt = &now
		}
	}
	return nil
}

func (f *fakeRepo) reconcileLocked(appointmentID int64, procs []AppointmentProcedure, deletedRefs []uuid.UUID) {
	for _, p := range procs {
		if p.ID != 0 {
			existing := f.procs[appointmentID]
			for i := range existing {
				if existing[i].ID == p.ID {
					p.AppointmentID = appointmentID
					existing[i] = p
				}
			}
			continue
		}
		f.nextProcID++
		p.ID = f.nextProcID
		p.AppointmentID = appointmentID
		if p.ExternalRef == uuid.Nil {
			p.ExternalRef = uuid.New()
		}
		f.procs[appointmentID] = append(f.procs[appointmentID], p)
	}
	for _, ref := range deletedRefs {
		kept := f.procs[appointmentID][:0]
		for _, p := range f.procs[appointmentID] {
			if p.ExternalRef != ref {
				kept = append(kept, p)
			}
		}
		f.procs[appointmentID] = kept
	}
}

// fakeLocker runs the critical section under a process-local mutex, which is
// what the Redis lock gives a single instance.
type fakeLocker struct {
	mu sync.Mutex
}

func (l *fakeLocker) WithCalendarLock(ctx context.Context, _ int64, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}
