package auction

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const displayLayout = "2006-01-02 15:04:05"

// ScheduleEntry is one future step of the running or scheduled auction.
type ScheduleEntry struct {
	Step            int64     `json:"step"`
	DiscountPercent float64   `json:"discountPercent"`
	At              time.Time `json:"at"`
}

// StepCounts are the variant counts of the most recent price mutation.
type StepCounts struct {
	Eligible int `json:"eligible"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// Status 只读投影，供店面倒计时与管理端展示。
type Status struct {
	IsRunning                bool            `json:"isRunning"`
	IsScheduled              bool            `json:"isScheduled"`
	CurrentDiscountPercent   float64         `json:"currentDiscountPercent"`
	IntervalMinutes          int             `json:"intervalMinutes,omitempty"`
	DiscountIncrementPercent float64         `json:"discountIncrementPercent,omitempty"`
	StartedAt                *time.Time      `json:"startedAt,omitempty"`
	LastUpdateTime           *time.Time      `json:"lastUpdateTime,omitempty"`
	NextUpdateTime           *time.Time      `json:"nextUpdateTime,omitempty"`
	TimeUntilNextUpdateMs    int64           `json:"timeUntilNextUpdateMs"`
	ScheduledStartTime       *time.Time      `json:"scheduledStartTime,omitempty"`
	FormattedScheduledTime   string          `json:"formattedScheduledTime,omitempty"`
	Timezone                 string          `json:"timezone,omitempty"`
	Schedule                 []ScheduleEntry `json:"schedule"`
	LastStep                 StepCounts      `json:"lastStep"`
	ProductCount             int             `json:"productCount"`
	ServerTime               time.Time       `json:"serverTime"`
}

// Status 返回当前状态。若计划中的拍卖已到期而调度循环尚未 tick，
// 在拿得到变更锁时走同一个 promoteIfDue 完成提升；拿不到则直接返回快照。
func (e *Engine) Status(ctx context.Context) Status {
	now := e.now().UTC()
	if e.needsPromoteOnRead(now) && e.mu.TryLock() {
		ctx := detach(ctx)
		if err := e.ensureLoaded(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("status: load auction state failed")
		} else if err := e.promoteIfDue(ctx, e.now().UTC()); err != nil {
			e.logger.Warn().Err(err).Msg("status: promote on read failed")
		}
		e.mu.Unlock()
		now = e.now().UTC()
	}
	return project(e.snap.Load(), now, e.previewLimit)
}

func (e *Engine) needsPromoteOnRead(now time.Time) bool {
	if !e.loaded.Load() {
		return true
	}
	s := e.snap.Load()
	return s.cfg != nil && s.cfg.IsScheduled() && !now.Before(*s.cfg.ScheduledStartTime)
}

func project(s *snapshot, now time.Time, limit int) Status {
	st := Status{
		CurrentDiscountPercent: s.applied,
		ProductCount:           s.productCount,
		ServerTime:             now,
		Schedule:               []ScheduleEntry{},
	}
	cfg := s.cfg
	if cfg == nil {
		return st
	}

	st.IntervalMinutes = cfg.IntervalMinutes
	st.DiscountIncrementPercent = cfg.DiscountIncrementPercent
	st.Timezone = cfg.Timezone
	st.StartedAt = cfg.StartedAt
	st.LastUpdateTime = cfg.LastUpdateAt
	st.LastStep = StepCounts{
		Eligible: cfg.LastStepEligible,
		Updated:  cfg.LastStepUpdated,
		Failed:   cfg.LastStepFailed,
	}
	interval := cfg.Interval()

	switch {
	case cfg.IsActive && cfg.StartedAt != nil:
		st.IsRunning = true
		st.CurrentDiscountPercent = cfg.CurrentDiscountPercent
		anchor := *cfg.StartedAt
		next := stepAt(anchor, cfg.StepsFired+1, interval)
		st.NextUpdateTime = &next
		st.TimeUntilNextUpdateMs = untilMs(now, next)
		st.Schedule = preview(cfg.CurrentDiscountPercent, cfg.DiscountIncrementPercent, func(k int64) (int64, time.Time) {
			step := cfg.StepsFired + k
			return step, stepAt(anchor, step, interval)
		}, limit)

	case cfg.IsScheduled():
		st.IsScheduled = true
		at := *cfg.ScheduledStartTime
		st.ScheduledStartTime = &at
		st.FormattedScheduledTime = formatInZone(at, cfg.Timezone)
		st.NextUpdateTime = &at
		st.TimeUntilNextUpdateMs = untilMs(now, at)

		start := cfg.DiscountIncrementPercent
		if cfg.InitialDiscountPercent != nil {
			start = *cfg.InitialDiscountPercent
		} else if s.applied > 0 {
			start = s.applied
		}
		st.Schedule = append([]ScheduleEntry{{Step: 0, DiscountPercent: start, At: at}},
			preview(start, cfg.DiscountIncrementPercent, func(k int64) (int64, time.Time) {
				return k, stepAt(at, k, interval)
			}, limit-1)...)
		if reachedCap(start) {
			st.Schedule = st.Schedule[:1]
		}
	}
	return st
}

// preview lists future steps after the current discount, stopping at 100% or limit.
func preview(current, increment float64, at func(k int64) (int64, time.Time), limit int) []ScheduleEntry {
	out := []ScheduleEntry{}
	if increment <= 0 || reachedCap(current) {
		return out
	}
	cur := decimal.NewFromFloat(current)
	inc := decimal.NewFromFloat(increment)
	for k := int64(1); len(out) < limit; k++ {
		d := cur.Add(inc.Mul(decimal.NewFromInt(k)))
		if d.GreaterThan(hundred) {
			d = hundred
		}
		step, when := at(k)
		out = append(out, ScheduleEntry{Step: step, DiscountPercent: d.InexactFloat64(), At: when})
		if !d.LessThan(hundred) {
			break
		}
	}
	return out
}

func untilMs(now, at time.Time) int64 {
	d := at.Sub(now)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

func formatInZone(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(displayLayout)
}
