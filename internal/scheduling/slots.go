package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// SlotGenerator walks a date range and computes open bookable slots per
// provider schedule. A schedule row with an unparsable time is logged and
// skipped so one bad row cannot blank out a multi-day query.
type SlotGenerator struct {
	catalog Catalog
	log     zerolog.Logger
}

func NewSlotGenerator(catalog Catalog, log zerolog.Logger) *SlotGenerator {
	return &SlotGenerator{catalog: catalog, log: log}
}

// Generate produces the slot groups for [from, to], inclusive, one group per
// matching schedule per day. Weekends never yield slots. Overlapping
// schedules each emit their own group; the output is deliberately not
// deduplicated.
func (g *SlotGenerator) Generate(ctx context.Context, providerID int64, from, to time.Time) ([]SlotGroup, error) {
	from = truncateToDay(from)
	to = truncateToDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from %s is after to %s", ErrInvalidInput, FormatDate(from), FormatDate(to))
	}

	schedules, err := g.catalog.GetSchedules(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	var groups []SlotGroup
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		matching := matchingSchedules(schedules, day)
		for _, sched := range matching {
			group, err := g.generateForSchedule(ctx, sched, day)
			if err != nil {
				// Bad schedule row; record and keep going.
				g.log.Warn().
					Err(err).
					Int64("provider_id", providerID).
					Int64("schedule_id", sched.ID).
					Str("date", FormatDate(day)).
					Msg("skipping schedule during slot generation")
				continue
			}
			if len(group.Slots) > 0 {
				groups = append(groups, group)
			}
		}
	}

	return groups, nil
}

func matchingSchedules(schedules []ProviderSchedule, day time.Time) []ProviderSchedule {
	var out []ProviderSchedule
	for _, s := range schedules {
		if s.AppliesOn(day) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

func (g *SlotGenerator) generateForSchedule(ctx context.Context, sched ProviderSchedule, day time.Time) (SlotGroup, error) {
	start, err := ClockOn(day, sched.StartTime)
	if err != nil {
		return SlotGroup{}, fmt.Errorf("schedule start: %w", err)
	}
	end, err := ClockOn(day, sched.EndTime)
	if err != nil {
		return SlotGroup{}, fmt.Errorf("schedule end: %w", err)
	}

	candidates := candidateStarts(start, end)
	if len(candidates) == 0 {
		return SlotGroup{ScheduleID: sched.ID, ProviderID: sched.ProviderID, SiteID: sched.SiteID, Date: day}, nil
	}

	candidates, err = g.applyBreak(candidates, sched, day)
	if err != nil {
		return SlotGroup{}, err
	}

	candidates, err = g.applyHolidays(ctx, candidates, sched, day)
	if err != nil {
		return SlotGroup{}, err
	}

	candidates, err = g.applyBlocks(ctx, candidates, sched, day)
	if err != nil {
		return SlotGroup{}, err
	}

	candidates, err = g.applyBookings(ctx, candidates, sched, day)
	if err != nil {
		return SlotGroup{}, err
	}

	group := SlotGroup{
		ScheduleID: sched.ID,
		ProviderID: sched.ProviderID,
		SiteID:     sched.SiteID,
		Date:       day,
	}
	for _, t := range candidates {
		group.Slots = append(group.Slots, Slot{
			ID:          SlotID(sched.ProviderID, t),
			Start:       t,
			End:         t.Add(slotLength),
			DurationMin: SlotMinutes,
			State:       SlotActive,
			Type:        SlotTypeFree,
		})
	}
	return group, nil
}

// candidateStarts yields every 15-minute start whose full slot fits inside
// [start, end].
func candidateStarts(start, end time.Time) []time.Time {
	var out []time.Time
	for t := start; !t.Add(slotLength).After(end); t = t.Add(slotLength) {
		out = append(out, t)
	}
	return out
}

func (g *SlotGenerator) applyBreak(candidates []time.Time, sched ProviderSchedule, day time.Time) ([]time.Time, error) {
	if sched.BreakStart == nil || sched.BreakEnd == nil {
		return candidates, nil
	}
	bs, err := ClockOn(day, *sched.BreakStart)
	if err != nil {
		return nil, fmt.Errorf("break start: %w", err)
	}
	be, err := ClockOn(day, *sched.BreakEnd)
	if err != nil {
		return nil, fmt.Errorf("break end: %w", err)
	}
	return filterStarts(candidates, func(t time.Time) bool {
		return t.Before(bs) || !t.Before(be) // keep outside [bs, be)
	}), nil
}

func (g *SlotGenerator) applyHolidays(ctx context.Context, candidates []time.Time, sched ProviderSchedule, day time.Time) ([]time.Time, error) {
	holidays, err := g.catalog.GetHolidays(ctx, day.Year(), MonthDay(day), sched.SiteID)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}

	for _, h := range holidays {
		if !h.Active || !h.AppliesToSite(sched.SiteID) {
			continue
		}
		if h.WholeDay() {
			return nil, nil
		}
		hs, errS := ClockOn(day, *h.StartTime)
		he, errE := ClockOn(day, *h.EndTime)
		if errS != nil || errE != nil {
			// Malformed window degrades to blocking the whole day.
			g.log.Warn().
				Int64("holiday_id", h.ID).
				Str("date", FormatDate(day)).
				Msg("holiday time window unparsable, blocking whole day")
			return nil, nil
		}
		candidates = filterStarts(candidates, func(t time.Time) bool {
			return t.Before(hs) || !t.Before(he)
		})
	}
	return candidates, nil
}

func (g *SlotGenerator) applyBlocks(ctx context.Context, candidates []time.Time, sched ProviderSchedule, day time.Time) ([]time.Time, error) {
	blocks, err := g.catalog.GetBlockedTimeslots(ctx, sched.ProviderID, day, sched.SiteID)
	if err != nil {
		return nil, fmt.Errorf("load blocked timeslots: %w", err)
	}
	for _, b := range blocks {
		blocked := b.StartAt
		candidates = filterStarts(candidates, func(t time.Time) bool {
			return !t.Equal(blocked)
		})
	}
	return candidates, nil
}

func (g *SlotGenerator) applyBookings(ctx context.Context, candidates []time.Time, sched ProviderSchedule, day time.Time) ([]time.Time, error) {
	appts, err := g.catalog.GetExistingAppointments(ctx, sched.ProviderID, day, sched.SiteID)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	for _, a := range appts {
		if !a.Occupies() {
			continue
		}
		// Appointments are assumed to align to 15-minute boundaries; each
		// occupied step removes the exactly-matching candidate.
		steps := a.DurationMin / SlotMinutes
		for i := 0; i < steps; i++ {
			occupied := a.StartAt.Add(time.Duration(i) * slotLength)
			candidates = filterStarts(candidates, func(t time.Time) bool {
				return !t.Equal(occupied)
			})
		}
	}
	return candidates, nil
}

func filterStarts(in []time.Time, keep func(time.Time) bool) []time.Time {
	out := in[:0]
	for _, t := range in {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
