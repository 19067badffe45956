package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func existingBooking(repo *fakeRepo) {
	// 09:30 for 30 minutes, same as the slot generation scenario.
	repo.addAppointment(Appointment{
		ProviderID:  7,
		SiteID:      1,
		MRN:         "MRN001",
		StartAt:     monday.Add(9*time.Hour + 30*time.Minute),
		DurationMin: 30,
		Status:      StatusScheduled,
		Active:      true,
	})
}

func TestCheck_NoConflict(t *testing.T) {
	repo := newFakeRepo()
	existingBooking(repo)

	result, err := NewAvailabilityChecker(repo).Check(context.Background(), AvailabilityRequest{
		ProviderID:     7,
		LocationTypeID: 1,
		Start:          monday.Add(10 * time.Hour),
		DurationMin:    30,
	})
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.False(t, result.AskToConfirm)
	assert.Zero(t, result.ConflictCount)
}

func TestCheck_ConflictOverbookingDenied(t *testing.T) {
	repo := newFakeRepo()
	existingBooking(repo)

	result, err := NewAvailabilityChecker(repo).Check(context.Background(), AvailabilityRequest{
		ProviderID:       7,
		LocationTypeID:   1,
		Start:            monday.Add(9*time.Hour + 30*time.Minute),
		DurationMin:      30,
		AllowOverBooking: false,
	})
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	assert.Equal(t, "not authorized to overbook", result.Message)
	assert.Equal(t, 1, result.ConflictCount)
	assert.Equal(t, int64(1), result.ConflictSiteID)
}

func TestCheck_ConflictOverbookingAllowed(t *testing.T) {
	repo := newFakeRepo()
	existingBooking(repo)

	result, err := NewAvailabilityChecker(repo).Check(context.Background(), AvailabilityRequest{
		ProviderID:       7,
		LocationTypeID:   1,
		Start:            monday.Add(9*time.Hour + 30*time.Minute),
		DurationMin:      30,
		AllowOverBooking: true,
	})
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.True(t, result.AskToConfirm)
	assert.Equal(t, 1, result.ConflictCount)
}

func TestCheck_PartialOverlapStillConflicts(t *testing.T) {
	repo := newFakeRepo()
	existingBooking(repo)

	// 09:45-10:15 overlaps the tail of the 09:30-10:00 booking.
	result, err := NewAvailabilityChecker(repo).Check(context.Background(), AvailabilityRequest{
		ProviderID:     7,
		LocationTypeID: 1,
		Start:          monday.Add(9*time.Hour + 45*time.Minute),
		DurationMin:    30,
	})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 1, result.ConflictCount)
}

func TestCheck_AdjacentIntervalsDoNotConflict(t *testing.T) {
	repo := newFakeRepo()
	existingBooking(repo)

	// Ends exactly where the booking starts; half-open intervals touch but
	// do not overlap.
	result, err := NewAvailabilityChecker(repo).Check(context.Background(), AvailabilityRequest{
		ProviderID:     7,
		LocationTypeID: 1,
		Start:          monday.Add(9 * time.Hour),
		DurationMin:    30,
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Zero(t, result.ConflictCount)
}

func TestCheck_RescheduledAndCancelledNeverConflict(t *testing.T) {
	repo := newFakeRepo()
	for _, status := range []AppointmentStatus{StatusRescheduled, StatusCancelled} {
		repo.addAppointment(Appointment{
			ProviderID:  7,
			SiteID:      1,
			MRN:         "MRN001",
			StartAt:     monday.Add(9 * time.Hour),
			DurationMin: 60,
			Status:      status,
			Active:      true,
		})
	}

	result, err := NewAvailabilityChecker(repo).Check(context.Background(), AvailabilityRequest{
		ProviderID:     7,
		LocationTypeID: 1,
		Start:          monday.Add(9 * time.Hour),
		DurationMin:    60,
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Zero(t, result.ConflictCount)
}

func TestCheck_ValidationErrors(t *testing.T) {
	repo := newFakeRepo()
	checker := NewAvailabilityChecker(repo)

	_, err := checker.Check(context.Background(), AvailabilityRequest{
		ProviderID:  0,
		Start:       monday,
		DurationMin: 30,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = checker.Check(context.Background(), AvailabilityRequest{
		ProviderID:  7,
		Start:       monday,
		DurationMin: 0,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIntervalsOverlap_Symmetry(t *testing.T) {
	base := monday.Add(9 * time.Hour)
	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"identical", base, base.Add(30 * time.Minute), base, base.Add(30 * time.Minute), true},
		{"nested", base, base.Add(time.Hour), base.Add(15 * time.Minute), base.Add(30 * time.Minute), true},
		{"partial", base, base.Add(30 * time.Minute), base.Add(15 * time.Minute), base.Add(45 * time.Minute), true},
		{"adjacent", base, base.Add(30 * time.Minute), base.Add(30 * time.Minute), base.Add(time.Hour), false},
		{"disjoint", base, base.Add(15 * time.Minute), base.Add(time.Hour), base.Add(2 * time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, intervalsOverlap(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
			assert.Equal(t, tc.want, intervalsOverlap(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd),
				"overlap must be symmetric")
		})
	}
}
