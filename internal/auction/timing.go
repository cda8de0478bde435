package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// intervalsPassed = floor((now - anchor) / interval)，now 早于锚点时为 0。
func intervalsPassed(anchor, now time.Time, interval time.Duration) int64 {
	if interval <= 0 || now.Before(anchor) {
		return 0
	}
	return int64(now.Sub(anchor) / interval)
}

// stepDue: now >= anchor + (stepsFired+1) * interval.
func stepDue(anchor time.Time, stepsFired int64, interval time.Duration, now time.Time) bool {
	return !now.Before(stepAt(anchor, stepsFired+1, interval))
}

func stepAt(anchor time.Time, k int64, interval time.Duration) time.Time {
	return anchor.Add(time.Duration(k) * interval)
}

// nextDiscount = min(current + increment, 100).
func nextDiscount(current, increment float64) float64 {
	d := decimal.NewFromFloat(current).Add(decimal.NewFromFloat(increment))
	if d.GreaterThan(hundred) {
		d = hundred
	}
	return d.InexactFloat64()
}

func reachedCap(discount float64) bool {
	return !decimal.NewFromFloat(discount).LessThan(hundred)
}
