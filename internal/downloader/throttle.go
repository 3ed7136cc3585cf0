package downloader

import (
	"math"
	"time"
)

// progressThrottle limits progress reports by a minimum interval and a
// minimum change in percent. Completion is always reported once.
type progressThrottle struct {
	interval time.Duration
	minDelta float64
	now      func() time.Time

	sent     bool
	lastAt   time.Time
	lastFrac float64
}

func newProgressThrottle(interval time.Duration, minDelta float64, now func() time.Time) *progressThrottle {
	if now == nil {
		now = time.Now
	}
	return &progressThrottle{interval: interval, minDelta: minDelta, now: now}
}

// Allow reports whether fraction (0..1) should be sent, and records it when so.
func (t *progressThrottle) Allow(fraction float64) bool {
	now := t.now()
	if t.sent {
		if fraction == t.lastFrac {
			return false
		}
		done := fraction >= 1
		if !done && now.Sub(t.lastAt) < t.interval {
			return false
		}
		if !done && math.Abs(fraction-t.lastFrac)*100 < t.minDelta {
			return false
		}
	}
	t.sent = true
	t.lastAt = now
	t.lastFrac = fraction
	return true
}
