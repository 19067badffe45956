package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medport/scheduling-service/internal/scheduling"
)

// stubRepo is just enough Catalog+Store to drive the handlers.
type stubRepo struct {
	schedules []scheduling.ProviderSchedule
	appts     map[int64]*scheduling.Appointment
	npis      map[string]int64
	nextID    int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		appts: make(map[int64]*scheduling.Appointment),
		npis:  map[string]int64{"1234567890": 7},
	}
}

// ResolveProvider mirrors the real resolution: small serials hit the id
// column, anything else falls through to the npi lookup. A ten-digit NPI is
// numeric too, so it must not short-circuit on the parse alone.
func (s *stubRepo) ResolveProvider(_ context.Context, idOrNPI string) (int64, error) {
	if n, err := strconv.ParseInt(idOrNPI, 10, 64); err == nil && n < 1000 {
		return n, nil
	}
	if id, ok := s.npis[idOrNPI]; ok {
		return id, nil
	}
	return 0, scheduling.ErrProviderNotFound
}

func (s *stubRepo) GetSchedules(_ context.Context, providerID int64, _, _ time.Time) ([]scheduling.ProviderSchedule, error) {
	var out []scheduling.ProviderSchedule
	for _, sc := range s.schedules {
		if sc.ProviderID == providerID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *stubRepo) GetHolidays(context.Context, int, string, int64) ([]scheduling.Holiday, error) {
	return nil, nil
}

func (s *stubRepo) GetBlockedTimeslots(context.Context, int64, time.Time, int64) ([]scheduling.BlockedTimeslot, error) {
	return nil, nil
}

func (s *stubRepo) GetExistingAppointments(_ context.Context, providerID int64, date time.Time, _ int64) ([]scheduling.Appointment, error) {
	var out []scheduling.Appointment
	for _, a := range s.appts {
		if a.ProviderID == providerID && a.Occupies() &&
			a.StartAt.Year() == date.Year() && a.StartAt.YearDay() == date.YearDay() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubRepo) GetAppointmentByID(_ context.Context, id int64) (*scheduling.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, scheduling.ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (s *stubRepo) BookAppointment(_ context.Context, appt scheduling.Appointment, _ []scheduling.AppointmentProcedure, _ []uuid.UUID) (int64, error) {
	s.nextID++
	appt.ID = s.nextID
	s.appts[appt.ID] = &appt
	return appt.ID, nil
}

func (s *stubRepo) UpdateAppointment(_ context.Context, appt scheduling.Appointment, _ []scheduling.AppointmentProcedure, _ []uuid.UUID) error {
	if _, ok := s.appts[appt.ID]; !ok {
		return scheduling.ErrAppointmentNotFound
	}
	s.appts[appt.ID] = &appt
	return nil
}

func (s *stubRepo) RescheduleAppointment(_ context.Context, oldID int64, oldStatus scheduling.AppointmentStatus, replacement scheduling.Appointment, _ []scheduling.AppointmentProcedure) (int64, error) {
	old, ok := s.appts[oldID]
	if !ok {
		return 0, scheduling.ErrAppointmentNotFound
	}
	old.Status = oldStatus
	s.nextID++
	replacement.ID = s.nextID
	s.appts[replacement.ID] = &replacement
	return replacement.ID, nil
}

func (s *stubRepo) CancelAppointment(_ context.Context, id int64, reason string, _ *int64) (bool, error) {
	a, ok := s.appts[id]
	if !ok || a.Status == scheduling.StatusCancelled {
		return false, nil
	}
	a.Status = scheduling.StatusCancelled
	a.Reason = reason
	return true, nil
}

func (s *stubRepo) ClaimPendingNotifications(context.Context, int) ([]scheduling.PatientNotification, error) {
	return nil, nil
}

func (s *stubRepo) MarkNotificationDispatched(context.Context, int64) error {
	return nil
}

type noopLocker struct{}

func (noopLocker) WithCalendarLock(ctx context.Context, _ int64, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestHandlers(repo *stubRepo) (http.HandlerFunc, http.HandlerFunc, *scheduling.Lifecycle) {
	logger := zerolog.Nop()
	checker := scheduling.NewAvailabilityChecker(repo)
	gen := scheduling.NewSlotGenerator(repo, logger)
	lc := scheduling.NewLifecycle(repo, repo, checker, noopLocker{}, logger)
	return slotsHandler(repo, gen, 7), availabilityHandler(checker), lc
}

func TestSlotsEndpoint(t *testing.T) {
	repo := newStubRepo()
	repo.schedules = []scheduling.ProviderSchedule{{
		ID:          1,
		ProviderID:  7,
		SiteID:      1,
		StartTime:   "09:00",
		EndTime:     "12:00",
		WeekdayMask: scheduling.MaskMonday,
		Priority:    1,
		Active:      true,
	}}
	slots, _, _ := newTestHandlers(repo)

	r := httptest.NewRequest(http.MethodGet, "/providers/7/slots?from=2025-01-06&to=2025-01-06", nil)
	r = withURLParam(r, "id", "7")
	w := httptest.NewRecorder()
	slots.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp SlotQueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Groups, 1)
	require.Len(t, resp.Groups[0].Slots, 12)
	assert.Equal(t, "2025-01-06 09:00:00", resp.Groups[0].Slots[0].Start)
	assert.Equal(t, "free", resp.Groups[0].Slots[0].Type)
}

func TestSlotsEndpoint_NPIAlias(t *testing.T) {
	repo := newStubRepo()
	repo.schedules = []scheduling.ProviderSchedule{{
		ID:          1,
		ProviderID:  7,
		SiteID:      1,
		StartTime:   "09:00",
		EndTime:     "12:00",
		WeekdayMask: scheduling.MaskMonday,
		Priority:    1,
		Active:      true,
	}}
	slots, _, _ := newTestHandlers(repo)

	r := httptest.NewRequest(http.MethodGet, "/providers/1234567890/slots?from=2025-01-06&to=2025-01-06", nil)
	r = withURLParam(r, "id", "1234567890")
	w := httptest.NewRecorder()
	slots.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp SlotQueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Groups, 1)
	assert.Len(t, resp.Groups[0].Slots, 12)
}

func TestSlotsEndpoint_UnknownProvider(t *testing.T) {
	repo := newStubRepo()
	slots, _, _ := newTestHandlers(repo)

	r := httptest.NewRequest(http.MethodGet, "/providers/nobody/slots", nil)
	r = withURLParam(r, "id", "nobody")
	w := httptest.NewRecorder()
	slots.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSlotsEndpoint_InvertedRange(t *testing.T) {
	repo := newStubRepo()
	slots, _, _ := newTestHandlers(repo)

	r := httptest.NewRequest(http.MethodGet, "/providers/7/slots?from=2025-01-07&to=2025-01-06", nil)
	r = withURLParam(r, "id", "7")
	w := httptest.NewRecorder()
	slots.ServeHTTP(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, "invalid_range", e.Error)
}

func TestAvailabilityEndpoint_Conflict(t *testing.T) {
	repo := newStubRepo()
	repo.nextID = 1
	repo.appts[1] = &scheduling.Appointment{
		ID:          1,
		ProviderID:  7,
		SiteID:      1,
		MRN:         "MRN001",
		StartAt:     time.Date(2025, 1, 6, 9, 30, 0, 0, time.Local),
		DurationMin: 30,
		Status:      scheduling.StatusScheduled,
		Active:      true,
	}
	_, availability, _ := newTestHandlers(repo)

	body, _ := json.Marshal(AvailabilityCheckRequest{
		ProviderID:      7,
		LocationTypeID:  1,
		AppDateTime:     "20250106093000",
		DurationMinutes: 30,
	})
	r := httptest.NewRequest(http.MethodPost, "/availability/check", bytes.NewReader(body))
	w := httptest.NewRecorder()
	availability.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp AvailabilityCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsAllowed)
	assert.Equal(t, 1, resp.ConflictCount)
	assert.Equal(t, "not authorized to overbook", resp.ResultMessage)
}

func TestAvailabilityEndpoint_BadTimestamp(t *testing.T) {
	repo := newStubRepo()
	_, availability, _ := newTestHandlers(repo)

	body, _ := json.Marshal(AvailabilityCheckRequest{
		ProviderID:      7,
		AppDateTime:     "2025-01-06 09:30",
		DurationMinutes: 30,
	})
	r := httptest.NewRequest(http.MethodPost, "/availability/check", bytes.NewReader(body))
	w := httptest.NewRecorder()
	availability.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookEndpoint_ConflictMapsTo409(t *testing.T) {
	repo := newStubRepo()
	_, _, lc := newTestHandlers(repo)
	handler := bookHandler(lc)

	start := time.Now().AddDate(0, 0, 7)
	start = time.Date(start.Year(), start.Month(), start.Day(), 9, 0, 0, 0, time.Local)

	payload := BookAppointmentRequest{
		Appointment: AppointmentPayload{
			ProviderID:      7,
			SiteID:          1,
			MRN:             "MRN001",
			StartAt:         scheduling.FormatLegacy(start),
			DurationMinutes: 30,
		},
	}
	body, _ := json.Marshal(payload)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code)

	// Same window again without overbooking.
	w = httptest.NewRecorder()
	body, _ = json.Marshal(payload)
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body)))
	require.Equal(t, http.StatusConflict, w.Code)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, "appointment_conflict", e.Error)
}

func TestCancelEndpoint_NonexistentSucceedsFalse(t *testing.T) {
	repo := newStubRepo()
	_, _, lc := newTestHandlers(repo)
	handler := cancelHandler(lc)

	body, _ := json.Marshal(CancelAppointmentRequest{})
	r := httptest.NewRequest(http.MethodPost, "/appointments/404/cancel", bytes.NewReader(body))
	r = withURLParam(r, "id", "404")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp CancelAppointmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, int(scheduling.StatusCancelled), resp.NewStatus)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
