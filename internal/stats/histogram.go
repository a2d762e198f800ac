// Package stats implements the per-event latency distribution store.
//
// Every ingested record contributes one delay sample, in microseconds, to
// the histogram of its event. Histograms are exact: one counter per possible
// microsecond value in [0, 1s), so summaries are computed from full
// information rather than from a sketch.
package stats

// MicrosecondsPerSecond bounds the histogram domain. Delays are reduced
// modulo this value before recording, so any seconds-scale component of a
// raw delay is discarded.
const MicrosecondsPerSecond = 1_000_000

// SLA thresholds in microseconds. The three bounded percentiles are computed
// relative to the subset of samples under the matching threshold.
const (
	threshold90  = 122
	threshold99  = 140
	threshold999 = 145
)

// Histogram is an exact per-microsecond frequency table over
// [0, MicrosecondsPerSecond).
//
// A min of 0 is ambiguous: it means either "no samples yet" or "a true zero
// delay was recorded". A later sample smaller than the current min replaces
// it, and min==0 counts as unset for that comparison.
type Histogram struct {
	buckets [MicrosecondsPerSecond]uint64

	total uint64
	min   uint32
	max   uint32

	below122 uint64
	below140 uint64
	below145 uint64
}

// Observe records one delay sample. The delay is reduced modulo
// MicrosecondsPerSecond first. Never fails.
func (h *Histogram) Observe(delay uint32) {
	delay %= MicrosecondsPerSecond

	h.buckets[delay]++
	h.total++

	if delay < h.min || h.min == 0 {
		h.min = delay
	}
	if delay > h.max {
		h.max = delay
	}

	if delay < threshold90 {
		h.below122++
	}
	if delay < threshold99 {
		h.below140++
	}
	if delay < threshold999 {
		h.below145++
	}
}

// Count returns the total number of recorded samples.
func (h *Histogram) Count() uint64 { return h.total }

// Min returns the smallest recorded delay, or 0 if none were recorded
// (indistinguishable from a recorded zero, see type comment).
func (h *Histogram) Min() uint32 { return h.min }

// Max returns the largest recorded delay, or 0 if none were recorded.
func (h *Histogram) Max() uint32 { return h.max }

// BucketCount returns the number of samples recorded for one exact delay.
func (h *Histogram) BucketCount(delay uint32) uint64 {
	return h.buckets[delay%MicrosecondsPerSecond]
}
