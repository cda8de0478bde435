package auction

import (
	"testing"
	"time"

	"reverse_auction/internal/model"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestProjectRunningSchedulePreview(t *testing.T) {
	started := t0
	cfg := &model.AuctionConfig{
		IntervalMinutes:          15,
		DiscountIncrementPercent: 30,
		CurrentDiscountPercent:   30,
		IsActive:                 true,
		Timezone:                 "CET",
		StartedAt:                &started,
		LastStepEligible:         4,
		LastStepUpdated:          3,
		LastStepFailed:           1,
	}
	st := project(&snapshot{cfg: cfg, applied: 30, productCount: 7}, t0.Add(5*time.Minute), 10)

	check.True(t, st.IsRunning)
	check.Equal(t, 7, st.ProductCount)
	check.Equal(t, StepCounts{Eligible: 4, Updated: 3, Failed: 1}, st.LastStep)
	check.Equal(t, int64(10*time.Minute/time.Millisecond), st.TimeUntilNextUpdateMs)

	assert.Equal(t, 3, len(st.Schedule))
	check.Equal(t, 60.0, st.Schedule[0].DiscountPercent)
	check.True(t, t0.Add(15*time.Minute).Equal(st.Schedule[0].At))
	check.Equal(t, 90.0, st.Schedule[1].DiscountPercent)
	check.Equal(t, 100.0, st.Schedule[2].DiscountPercent)
	check.True(t, t0.Add(45*time.Minute).Equal(st.Schedule[2].At))
}

func TestProjectPreviewLimit(t *testing.T) {
	started := t0
	cfg := &model.AuctionConfig{
		IntervalMinutes:          1,
		DiscountIncrementPercent: 0.5,
		CurrentDiscountPercent:   0.5,
		IsActive:                 true,
		StartedAt:                &started,
	}
	st := project(&snapshot{cfg: cfg, applied: 0.5}, t0, 5)
	assert.Equal(t, 5, len(st.Schedule))
	check.Equal(t, 3.0, st.Schedule[4].DiscountPercent)
	check.Equal(t, int64(5), st.Schedule[4].Step)
}

func TestProjectScheduled(t *testing.T) {
	at := t0.Add(2 * time.Hour)
	cfg := &model.AuctionConfig{
		IntervalMinutes:          60,
		DiscountIncrementPercent: 25,
		ScheduledStartTime:       &at,
		Timezone:                 "America/New_York",
	}
	st := project(&snapshot{cfg: cfg, applied: 50}, t0, 100)

	check.True(t, st.IsScheduled)
	check.False(t, st.IsRunning)
	check.Equal(t, "2026-03-10 10:00:00", st.FormattedScheduledTime)
	check.Equal(t, int64(2*time.Hour/time.Millisecond), st.TimeUntilNextUpdateMs)
	// 首步沿用店面已有的 50%
	assert.Equal(t, 3, len(st.Schedule))
	check.Equal(t, 50.0, st.Schedule[0].DiscountPercent)
	check.True(t, at.Equal(st.Schedule[0].At))
	check.Equal(t, 75.0, st.Schedule[1].DiscountPercent)
	check.Equal(t, 100.0, st.Schedule[2].DiscountPercent)
	check.True(t, at.Add(2*time.Hour).Equal(st.Schedule[2].At))
}

func TestProjectIdle(t *testing.T) {
	st := project(&snapshot{applied: 12.5}, t0, 10)
	check.False(t, st.IsRunning)
	check.False(t, st.IsScheduled)
	check.Equal(t, 12.5, st.CurrentDiscountPercent)
	check.Equal(t, 0, len(st.Schedule))
	check.Equal(t, int64(0), st.TimeUntilNextUpdateMs)
}

func TestTimingHelpers(t *testing.T) {
	iv := 10 * time.Minute
	check.Equal(t, int64(0), intervalsPassed(t0, t0.Add(-time.Minute), iv))
	check.Equal(t, int64(0), intervalsPassed(t0, t0.Add(9*time.Minute), iv))
	check.Equal(t, int64(1), intervalsPassed(t0, t0.Add(10*time.Minute), iv))
	check.Equal(t, int64(3), intervalsPassed(t0, t0.Add(39*time.Minute), iv))

	check.False(t, stepDue(t0, 0, iv, t0.Add(9*time.Minute+59*time.Second)))
	check.True(t, stepDue(t0, 0, iv, t0.Add(10*time.Minute)))
	check.False(t, stepDue(t0, 3, iv, t0.Add(39*time.Minute)))

	check.Equal(t, 100.0, nextDiscount(95, 10))
	check.Equal(t, 0.3, nextDiscount(0.1, 0.2))
	check.True(t, reachedCap(100))
	check.False(t, reachedCap(99.99))
}
