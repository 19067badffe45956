package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/medport/scheduling-service/internal/redis"
	"github.com/medport/scheduling-service/internal/scheduling"
)

func slotsHandler(catalog scheduling.Catalog, gen *scheduling.SlotGenerator, defaultDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := catalog.ResolveProvider(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, scheduling.ErrProviderNotFound) {
				writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		from := time.Now()
		to := from.AddDate(0, 0, defaultDays)
		if v := r.URL.Query().Get("from"); v != "" {
			from, err = scheduling.ParseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be yyyy-MM-dd")
				return
			}
			to = from.AddDate(0, 0, defaultDays)
		}
		if v := r.URL.Query().Get("to"); v != "" {
			to, err = scheduling.ParseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be yyyy-MM-dd")
				return
			}
		}

		groups, err := gen.Generate(r.Context(), providerID, from, to)
		if err != nil {
			if errors.Is(err, scheduling.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := SlotQueryResponse{Groups: []SlotGroupDTO{}}
		for _, g := range groups {
			resp.Groups = append(resp.Groups, toSlotGroupDTO(g))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func availabilityHandler(checker *scheduling.AvailabilityChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AvailabilityCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := scheduling.ParseLegacy(req.AppDateTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_app_date_time", "appDateTime must be yyyyMMddHHmmss")
			return
		}

		result, err := checker.Check(r.Context(), scheduling.AvailabilityRequest{
			ProviderID:       req.ProviderID,
			LocationTypeID:   req.LocationTypeID,
			Start:            start,
			DurationMin:      req.DurationMinutes,
			AllowOverBooking: req.AllowOverBooking,
			IsUMC:            req.IsUMC,
		})
		if err != nil {
			if errors.Is(err, scheduling.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityCheckResponse{
			IsAllowed:              result.Allowed,
			ResultMessage:          result.Message,
			ShouldAskUserToConfirm: result.AskToConfirm,
			ConflictSiteID:         result.ConflictSiteID,
			ConflictCount:          result.ConflictCount,
		})
	}
}

func bookHandler(lc *scheduling.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, procs, refs, ok := decodeAppointmentParts(w, req.Appointment, req.Procedures, req.DeletedProcedureRefs)
		if !ok {
			return
		}

		id, err := lc.Book(r.Context(), scheduling.BookRequest{
			Appointment:          appt,
			Procedures:           procs,
			DeletedProcedureRefs: refs,
			AllowOverBooking:     req.AllowOverBooking,
			IsUMC:                req.IsUMC,
		})
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookAppointmentResponse{
			AppointmentID: id,
			Status:        int(scheduling.StatusScheduled),
		})
	}
}

func updateHandler(lc *scheduling.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, procs, refs, ok := decodeAppointmentParts(w, req.Appointment, req.Procedures, req.DeletedProcedureRefs)
		if !ok {
			return
		}
		appt.ID = id

		if err := lc.Update(r.Context(), appt, procs, refs); err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func rescheduleHandler(lc *scheduling.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, procs, _, ok := decodeAppointmentParts(w, req.Appointment, req.Procedures, nil)
		if !ok {
			return
		}

		result, err := lc.Reschedule(r.Context(), scheduling.RescheduleRequest{
			OldAppointmentID:  id,
			Replacement:       appt,
			Procedures:        procs,
			OldStatusOverride: scheduling.AppointmentStatus(req.OldStatusOverride),
		})
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, RescheduleAppointmentResponse{
			OldAppointmentID: result.OldAppointmentID,
			OldStatus:        int(result.OldStatus),
			NewAppointmentID: result.NewAppointmentID,
		})
	}
}

func cancelHandler(lc *scheduling.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		result, err := lc.Cancel(r.Context(), id, req.Reason, req.PatientNotifyID)
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelAppointmentResponse{
			AppointmentID: result.AppointmentID,
			NewStatus:     int(result.NewStatus),
			Success:       result.Success,
		})
	}
}

func getAppointmentHandler(lc *scheduling.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := lc.GetByID(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeAppointmentParts(w http.ResponseWriter, p AppointmentPayload, procs []ProcedurePayload, deletedRefs []string) (scheduling.Appointment, []scheduling.AppointmentProcedure, []uuid.UUID, bool) {
	appt, err := toAppointment(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment", err.Error())
		return scheduling.Appointment{}, nil, nil, false
	}
	converted, err := toProcedures(procs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_procedures", err.Error())
		return scheduling.Appointment{}, nil, nil, false
	}
	refs, err := toDeletedRefs(deletedRefs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_deleted_refs", err.Error())
		return scheduling.Appointment{}, nil, nil, false
	}
	return appt, converted, refs, true
}

func handleLifecycleError(w http.ResponseWriter, err error) {
	var conflict *scheduling.ConflictError
	switch {
	case errors.Is(err, scheduling.ErrInvalidInput),
		errors.Is(err, scheduling.ErrPastReschedule):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "appointment_conflict", err.Error())
	case errors.Is(err, scheduling.ErrBookingContended),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "calendar_being_booked", "provider calendar is being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
