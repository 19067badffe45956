package scheduling

import (
	"context"
	"fmt"
	"time"
)

// AvailabilityRequest describes a proposed appointment to check. LocationTypeID
// scopes the conflict search to one site; IsUMC widens it to every site the
// provider works at.
type AvailabilityRequest struct {
	ProviderID       int64
	LocationTypeID   int64
	Start            time.Time
	DurationMin      int
	AllowOverBooking bool
	IsUMC            bool
}

type AvailabilityResult struct {
	Allowed        bool
	Message        string
	AskToConfirm   bool
	ConflictSiteID int64
	ConflictCount  int
}

// AvailabilityChecker decides whether a proposed appointment conflicts with
// existing Scheduled appointments. The check is advisory: it reserves
// nothing. The lifecycle re-runs it under the booking lock.
type AvailabilityChecker struct {
	catalog Catalog
}

func NewAvailabilityChecker(catalog Catalog) *AvailabilityChecker {
	return &AvailabilityChecker{catalog: catalog}
}

func (c *AvailabilityChecker) Check(ctx context.Context, req AvailabilityRequest) (AvailabilityResult, error) {
	if req.ProviderID == 0 {
		return AvailabilityResult{}, fmt.Errorf("%w: provider id required", ErrInvalidInput)
	}
	if req.DurationMin <= 0 {
		return AvailabilityResult{}, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}

	siteID := req.LocationTypeID
	if req.IsUMC {
		siteID = SiteAll
	}

	date := truncateToDay(req.Start)
	existing, err := c.catalog.GetExistingAppointments(ctx, req.ProviderID, date, siteID)
	if err != nil {
		return AvailabilityResult{}, fmt.Errorf("load appointments: %w", err)
	}

	newStart := req.Start
	newEnd := req.Start.Add(time.Duration(req.DurationMin) * time.Minute)

	var conflictCount int
	var conflictSiteID int64
	for _, a := range existing {
		if !a.Occupies() {
			continue
		}
		if intervalsOverlap(newStart, newEnd, a.StartAt, a.EndAt()) {
			if conflictCount == 0 {
				conflictSiteID = a.SiteID
			}
			conflictCount++
		}
	}

	if conflictCount == 0 {
		return AvailabilityResult{
			Allowed: true,
			Message: "time slot is available",
		}, nil
	}

	if !req.AllowOverBooking {
		return AvailabilityResult{
			Allowed:        false,
			Message:        "not authorized to overbook",
			ConflictSiteID: conflictSiteID,
			ConflictCount:  conflictCount,
		}, nil
	}

	return AvailabilityResult{
		Allowed:        true,
		AskToConfirm:   true,
		Message:        fmt.Sprintf("provider already has %d appointment(s) in this window", conflictCount),
		ConflictSiteID: conflictSiteID,
		ConflictCount:  conflictCount,
	}, nil
}

// intervalsOverlap is the standard half-open test: [aStart, aEnd) intersects
// [bStart, bEnd). Symmetric in its arguments.
func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
