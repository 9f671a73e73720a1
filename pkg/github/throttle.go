package github

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out calls to the GitHub API
type Throttle interface {
	// Wait blocks until the next call may be issued
	Wait(ctx context.Context) error
	// Stats returns usage statistics
	Stats() ThrottleStats
}

// ThrottleStats provides statistics about throttle usage
type ThrottleStats struct {
	Interval       time.Duration `json:"interval"`
	TotalWaits     int64         `json:"total_waits"`
	TotalDelayTime time.Duration `json:"total_delay_time"`
}

// fixedIntervalThrottle lets one call through per interval. The first call is not delayed.
type fixedIntervalThrottle struct {
	interval time.Duration
	limiter  *rate.Limiter

	waits   atomic.Int64
	delayed atomic.Int64
}

// NewThrottle creates a throttle that allows one call per interval.
// A zero or negative interval disables throttling.
func NewThrottle(interval time.Duration) Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &fixedIntervalThrottle{
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the next call may be issued
func (t *fixedIntervalThrottle) Wait(ctx context.Context) error {
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.waits.Add(1)
	t.delayed.Add(int64(time.Since(start)))
	return nil
}

// Stats returns usage statistics
func (t *fixedIntervalThrottle) Stats() ThrottleStats {
	return ThrottleStats{
		Interval:       t.interval,
		TotalWaits:     t.waits.Load(),
		TotalDelayTime: time.Duration(t.delayed.Load()),
	}
}
