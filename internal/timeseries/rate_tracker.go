// Package timeseries provides time-windowed rate tracking for ingestion.
//
// A RateTracker accumulates a monotonically increasing count (records or
// bytes) and computes rolling per-second rates over fixed windows. Sampling
// is driven externally, one sample per second; the ring buffer holds five
// minutes of history.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples retained, five minutes at one
	// sample per second.
	ringBufferSize = 300

	window1s  = 1 * time.Second
	window60s = 60 * time.Second
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a point-in-time snapshot of the cumulative count.
type sample struct {
	timestamp time.Time
	count     int64
}

// RateTracker tracks a cumulative count and derives rolling per-second
// rates. Add is lock-free; sampling and reads share a RWMutex over the
// ring buffer.
type RateTracker struct {
	total atomic.Int64

	samples  []sample
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// RateStats holds the derived rates at a point in time, all per second.
type RateStats struct {
	Total int64

	Rate1s  float64
	Rate60s float64

	// RateOverall is the average since tracking started.
	RateOverall float64
}

// NewRateTracker creates a tracker using the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for tests.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Add increments the cumulative count. Safe from any goroutine.
func (t *RateTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// RecordSample snapshots the current count. Call once a second.
func (t *RateTracker) RecordSample() {
	s := sample{timestamp: t.clock.Now(), count: t.total.Load()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// Stats computes the current rates from the available history. Never
// reports "no data": short histories just shorten the effective window.
func (t *RateTracker) Stats() RateStats {
	now := t.clock.Now()
	current := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{Total: current}

	if elapsed := now.Sub(t.startTime).Seconds(); elapsed > 0 {
		stats.RateOverall = float64(current) / elapsed
	}

	stats.Rate1s = t.rateOverWindow(now, current, window1s)
	stats.Rate60s = t.rateOverWindow(now, current, window60s)

	return stats
}

// rateOverWindow derives the per-second rate against the newest sample at
// or before the window start. Caller holds mu.
func (t *RateTracker) rateOverWindow(now time.Time, current int64, window time.Duration) float64 {
	if len(t.samples) == 0 {
		return 0
	}

	target := now.Add(-window)

	var best *sample
	var bestDiff time.Duration = -1
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		diff := target.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return 0
	}

	elapsed := now.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(current-best.count) / elapsed
}

// oldestSample returns the oldest retained sample. Caller holds mu.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// SampleCount returns the number of retained samples.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
