package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus int

const (
	StatusScheduled   AppointmentStatus = 1
	StatusRescheduled AppointmentStatus = 2
	StatusCancelled   AppointmentStatus = 3
)

func (s AppointmentStatus) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusRescheduled:
		return "rescheduled"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Weekday bits as the legacy admin tooling writes them.
const (
	MaskMonday    = 1
	MaskTuesday   = 2
	MaskWednesday = 4
	MaskThursday  = 8
	MaskFriday    = 16
	MaskSaturday  = 32
	MaskSunday    = 64
)

// WeekdayBit maps a time.Weekday onto the legacy Mon=1..Sun=64 mask.
func WeekdayBit(d time.Weekday) int {
	switch d {
	case time.Monday:
		return MaskMonday
	case time.Tuesday:
		return MaskTuesday
	case time.Wednesday:
		return MaskWednesday
	case time.Thursday:
		return MaskThursday
	case time.Friday:
		return MaskFriday
	case time.Saturday:
		return MaskSaturday
	default:
		return MaskSunday
	}
}

// SiteAll is the sentinel for records scoped to every site.
const SiteAll int64 = -1

// SlotMinutes is the fixed booking granularity. Not configurable per
// provider.
const SlotMinutes = 15

const slotLength = SlotMinutes * time.Minute

type ProviderSchedule struct {
	ID          int64
	ProviderID  int64
	SiteID      int64
	StartTime   string // "HH:mm"
	EndTime     string // "HH:mm"
	WeekdayMask int
	BreakStart  *string // "HH:mm", optional
	BreakEnd    *string
	ValidFrom   *time.Time // date only, nil = open
	ValidTo     *time.Time
	Priority    int // lower wins
	Active      bool
}

// AppliesOn reports whether the schedule is in effect on the given calendar
// date: active, validity range contains the date, weekday bit set.
func (s ProviderSchedule) AppliesOn(date time.Time) bool {
	if !s.Active {
		return false
	}
	day := truncateToDay(date)
	if s.ValidFrom != nil && day.Before(truncateToDay(*s.ValidFrom)) {
		return false
	}
	if s.ValidTo != nil && day.After(truncateToDay(*s.ValidTo)) {
		return false
	}
	return s.WeekdayMask&WeekdayBit(day.Weekday()) != 0
}

type Holiday struct {
	ID        int64
	Year      int
	MonthDay  string // "MMDD"
	SiteID    int64  // SiteAll = every site
	StartTime *string
	EndTime   *string
	Active    bool
}

// WholeDay reports whether the holiday blocks the entire day. A holiday
// without a complete time window always blocks the whole day.
func (h Holiday) WholeDay() bool {
	return h.StartTime == nil || h.EndTime == nil
}

// AppliesToSite reports whether the holiday covers the given site.
func (h Holiday) AppliesToSite(siteID int64) bool {
	return h.SiteID == SiteAll || h.SiteID == siteID
}

type BlockedTimeslot struct {
	ID         int64
	ProviderID int64
	SiteID     int64
	StartAt    time.Time
	Reason     string
}

type Appointment struct {
	ID              int64
	ProviderID      int64
	SiteID          int64
	MRN             string
	StartAt         time.Time
	DurationMin     int
	Status          AppointmentStatus
	Active          bool
	Reason          string
	Notes           string
	RescheduleOfID  *int64 // link to the row this one replaced
	ByProvider      bool
	PatientNotifyID *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) EndAt() time.Time {
	return a.StartAt.Add(time.Duration(a.DurationMin) * time.Minute)
}

// Occupies reports whether the appointment blocks slots and triggers
// conflicts. Rescheduled and cancelled rows never do.
func (a Appointment) Occupies() bool {
	return a.Status == StatusScheduled && a.Active
}

type AppointmentProcedure struct {
	ID             int64
	AppointmentID  int64
	ExternalRef    uuid.UUID
	Code           string
	Name           string
	Location       string
	StartOffsetMin int
	DurationMin    int
}

type SlotState string

const (
	SlotActive  SlotState = "active"
	SlotBooked  SlotState = "booked"
	SlotBlocked SlotState = "blocked"
)

type SlotType string

const (
	SlotTypeFree   SlotType = "free"
	SlotTypeBooked SlotType = "booked"
)

// Slot is a derived value, never persisted. Its identity is deterministic in
// (provider, start) so repeated queries agree without shared counter state.
type Slot struct {
	ID          uuid.UUID
	Start       time.Time
	End         time.Time
	DurationMin int
	State       SlotState
	Type        SlotType
}

// SlotGroup is the per-schedule slot bundle for one calendar day. Overlapping
// schedules on the same day each produce their own group; no merging.
type SlotGroup struct {
	ScheduleID int64
	ProviderID int64
	SiteID     int64
	Date       time.Time
	Slots      []Slot
}

var slotNamespace = uuid.MustParse("7a8e3f60-5d4c-4b0a-9d2e-1f6b8c7a9e21")

// SlotID derives a stable identifier from the provider and slot start.
func SlotID(providerID int64, start time.Time) uuid.UUID {
	key := fmt.Sprintf("%d:%s", providerID, start.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(slotNamespace, []byte(key))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
