package api

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/medport/scheduling-service/internal/scheduling"
)

// Appointment payloads ride the compact legacy timestamp encoding
// (yyyyMMddHHmmss) for compatibility with the surrounding portal. Slot
// output uses the readable yyyy-MM-dd HH:mm:ss form.

type SlotDTO struct {
	ID              string `json:"id"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"durationMinutes"`
	State           string `json:"state"`
	Type            string `json:"type"`
}

type SlotGroupDTO struct {
	ScheduleID int64     `json:"scheduleId"`
	ProviderID int64     `json:"providerId"`
	SiteID     int64     `json:"siteId"`
	Date       string    `json:"date"`
	Slots      []SlotDTO `json:"slots"`
}

type SlotQueryResponse struct {
	Groups []SlotGroupDTO `json:"groups"`
}

type AvailabilityCheckRequest struct {
	ProviderID       int64  `json:"providerId"`
	LocationTypeID   int64  `json:"locationTypeId"`
	AppDateTime      string `json:"appDateTime"` // yyyyMMddHHmmss
	DurationMinutes  int    `json:"durationMinutes"`
	AllowOverBooking bool   `json:"allowOverBooking"`
	IsUMC            bool   `json:"isUMC"`
}

type AvailabilityCheckResponse struct {
	IsAllowed              bool   `json:"isAllowed"`
	ResultMessage          string `json:"resultMessage"`
	ShouldAskUserToConfirm bool   `json:"shouldAskUserToConfirm"`
	ConflictSiteID         int64  `json:"conflictSiteId"`
	ConflictCount          int    `json:"conflictCount"`
}

type AppointmentPayload struct {
	ProviderID      int64  `json:"providerId"`
	SiteID          int64  `json:"siteId"`
	MRN             string `json:"mrn"`
	StartAt         string `json:"startAt"` // yyyyMMddHHmmss
	DurationMinutes int    `json:"durationMinutes"`
	Reason          string `json:"reason,omitempty"`
	Notes           string `json:"notes,omitempty"`
	ByProvider      bool   `json:"byProvider,omitempty"`
	PatientNotifyID *int64 `json:"patientNotifyId,omitempty"`
}

type ProcedurePayload struct {
	ID                 int64  `json:"id,omitempty"`
	ExternalRef        string `json:"externalRef,omitempty"`
	Code               string `json:"code"`
	Name               string `json:"name"`
	Location           string `json:"location,omitempty"`
	StartOffsetMinutes int    `json:"startOffsetMinutes"`
	DurationMinutes    int    `json:"durationMinutes"`
}

type BookAppointmentRequest struct {
	Appointment          AppointmentPayload `json:"appointment"`
	Procedures           []ProcedurePayload `json:"procedures,omitempty"`
	DeletedProcedureRefs []string           `json:"deletedProcedureRefs,omitempty"`
	AllowOverBooking     bool               `json:"allowOverBooking"`
	IsUMC                bool               `json:"isUMC"`
}

type BookAppointmentResponse struct {
	AppointmentID int64 `json:"appointmentId"`
	Status        int   `json:"status"`
}

type UpdateAppointmentRequest struct {
	Appointment          AppointmentPayload `json:"appointment"`
	Procedures           []ProcedurePayload `json:"procedures,omitempty"`
	DeletedProcedureRefs []string           `json:"deletedProcedureRefs,omitempty"`
}

type RescheduleAppointmentRequest struct {
	Appointment       AppointmentPayload `json:"appointment"`
	Procedures        []ProcedurePayload `json:"procedures,omitempty"`
	OldStatusOverride int                `json:"oldStatusOverride,omitempty"`
}

type RescheduleAppointmentResponse struct {
	OldAppointmentID int64 `json:"oldAppointmentId"`
	OldStatus        int   `json:"oldStatus"`
	NewAppointmentID int64 `json:"newAppointmentId"`
}

type CancelAppointmentRequest struct {
	Reason          string `json:"reason,omitempty"`
	PatientNotifyID *int64 `json:"patientNotifyId,omitempty"`
}

type CancelAppointmentResponse struct {
	AppointmentID int64 `json:"appointmentId"`
	NewStatus     int   `json:"newStatus"`
	Success       bool  `json:"success"`
}

type AppointmentResponse struct {
	ID              int64  `json:"id"`
	ProviderID      int64  `json:"providerId"`
	SiteID          int64  `json:"siteId"`
	MRN             string `json:"mrn"`
	StartAt         string `json:"startAt"` // yyyyMMddHHmmss
	DurationMinutes int    `json:"durationMinutes"`
	Status          int    `json:"status"`
	Active          bool   `json:"active"`
	Reason          string `json:"reason,omitempty"`
	Notes           string `json:"notes,omitempty"`
	RescheduleOfID  *int64 `json:"rescheduleOfId,omitempty"`
	ByProvider      bool   `json:"byProvider"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Conversions

func toAppointment(p AppointmentPayload) (scheduling.Appointment, error) {
	start, err := scheduling.ParseLegacy(p.StartAt)
	if err != nil {
		return scheduling.Appointment{}, fmt.Errorf("startAt: %w", err)
	}
	return scheduling.Appointment{
		ProviderID:      p.ProviderID,
		SiteID:          p.SiteID,
		MRN:             p.MRN,
		StartAt:         start,
		DurationMin:     p.DurationMinutes,
		Reason:          p.Reason,
		Notes:           p.Notes,
		ByProvider:      p.ByProvider,
		PatientNotifyID: p.PatientNotifyID,
	}, nil
}

func toProcedures(in []ProcedurePayload) ([]scheduling.AppointmentProcedure, error) {
	var out []scheduling.AppointmentProcedure
	for _, p := range in {
		ref := uuid.Nil
		if p.ExternalRef != "" {
			parsed, err := uuid.Parse(p.ExternalRef)
			if err != nil {
				return nil, fmt.Errorf("procedure externalRef %q: %w", p.ExternalRef, err)
			}
			ref = parsed
		}
		out = append(out, scheduling.AppointmentProcedure{
			ID:             p.ID,
			ExternalRef:    ref,
			Code:           p.Code,
			Name:           p.Name,
			Location:       p.Location,
			StartOffsetMin: p.StartOffsetMinutes,
			DurationMin:    p.DurationMinutes,
		})
	}
	return out, nil
}

func toDeletedRefs(in []string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, s := range in {
		ref, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("deleted procedure ref %q: %w", s, err)
		}
		out = append(out, ref)
	}
	return out, nil
}

func toSlotGroupDTO(g scheduling.SlotGroup) SlotGroupDTO {
	dto := SlotGroupDTO{
		ScheduleID: g.ScheduleID,
		ProviderID: g.ProviderID,
		SiteID:     g.SiteID,
		Date:       scheduling.FormatDate(g.Date),
	}
	for _, s := range g.Slots {
		dto.Slots = append(dto.Slots, SlotDTO{
			ID:              s.ID.String(),
			Start:           scheduling.FormatSlot(s.Start),
			End:             scheduling.FormatSlot(s.End),
			DurationMinutes: s.DurationMin,
			State:           string(s.State),
			Type:            string(s.Type),
		})
	}
	return dto
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ProviderID:      a.ProviderID,
		SiteID:          a.SiteID,
		MRN:             a.MRN,
		StartAt:         scheduling.FormatLegacy(a.StartAt),
		DurationMinutes: a.DurationMin,
		Status:          int(a.Status),
		Active:          a.Active,
		Reason:          a.Reason,
		Notes:           a.Notes,
		RescheduleOfID:  a.RescheduleOfID,
		ByProvider:      a.ByProvider,
	}
}
