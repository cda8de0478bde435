package auction

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// StartMode selects between starting now and waiting for a scheduled time.
type StartMode string

const (
	StartImmediate StartMode = "immediate"
	StartScheduled StartMode = "scheduled"
)

// scheduleLayouts are tried in order after RFC3339; they are interpreted in the request timezone.
var scheduleLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// CreateRequest 创建拍卖的入参。
type CreateRequest struct {
	IntervalMinutes          int
	DiscountIncrementPercent float64
	StartMode                StartMode
	ScheduledTime            string
	Timezone                 string
	InitialDiscountPercent   *float64
}

type validatedRequest struct {
	interval    int
	increment   float64
	initial     *float64
	mode        StartMode
	scheduledAt *time.Time
	timezone    string
}

func validateRequest(req CreateRequest, defaultTZ string) (validatedRequest, error) {
	var v validatedRequest
	if req.IntervalMinutes <= 0 {
		return v, errors.Wrapf(ErrInvalidInterval, "got %d", req.IntervalMinutes)
	}
	if !validPercent(req.DiscountIncrementPercent) || req.DiscountIncrementPercent <= 0 {
		return v, errors.Wrapf(ErrInvalidIncrement, "got %v", req.DiscountIncrementPercent)
	}
	if req.InitialDiscountPercent != nil && !validPercent(*req.InitialDiscountPercent) {
		return v, errors.Wrapf(ErrInvalidDiscount, "initial discount %v", *req.InitialDiscountPercent)
	}

	mode := StartMode(strings.ToLower(strings.TrimSpace(string(req.StartMode))))
	if mode == "" {
		mode = StartImmediate
	}
	if mode != StartImmediate && mode != StartScheduled {
		return v, errors.Wrapf(ErrInvalidStartMode, "got %q", req.StartMode)
	}

	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = defaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return v, errors.Wrapf(ErrUnknownTimezone, "%q", tz)
	}

	v = validatedRequest{
		interval:  req.IntervalMinutes,
		increment: req.DiscountIncrementPercent,
		initial:   req.InitialDiscountPercent,
		mode:      mode,
		timezone:  tz,
	}
	if mode == StartScheduled {
		at, err := parseScheduleTime(req.ScheduledTime, loc)
		if err != nil {
			return validatedRequest{}, err
		}
		v.scheduledAt = &at
	}
	return v, nil
}

func parseScheduleTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.Wrap(ErrInvalidScheduleTime, "scheduled start requires a time")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrInvalidScheduleTime, "%q", value)
}

func validPercent(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}
