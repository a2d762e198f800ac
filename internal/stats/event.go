package stats

import (
	"fmt"
	"strings"
)

// distributionStep is the bin width, in microseconds, used by the full
// distribution report.
const distributionStep = 5

// Summary holds the derived values for one event, valid as of the last
// Recompute. All values are microseconds.
//
// The three bounded percentiles are segment-relative: each is the percentile
// of only the samples under its threshold, normalized by the count of that
// subset. An event with no qualifying samples reports 0.
type Summary struct {
	Min          uint32
	Median       uint32
	P90Under122  uint32
	P99Under140  uint32
	P999Under145 uint32
}

// EventStats owns the histogram and cached summary for one event name.
// The summary is stale until Recompute is called; Observe never updates it.
//
// EventStats is not safe for concurrent use. The Registry serializes all
// access behind its lock.
type EventStats struct {
	hist    Histogram
	summary Summary
}

// Observe records one delay sample.
func (e *EventStats) Observe(delay uint32) {
	e.hist.Observe(delay)
}

// Histogram exposes the underlying frequency table, mainly for tests.
func (e *EventStats) Histogram() *Histogram { return &e.hist }

// Summary returns the cached summary. Call Recompute first for fresh values.
func (e *EventStats) Summary() Summary { return e.summary }

// Recompute derives the summary from the current histogram state.
//
// All four percentile values share one scan over the buckets in ascending
// delay order. For a target fraction f, bound B and denominator D, a bucket
// at delay d < B with count c updates the output to d when the running
// numerator, measured before adding c, still satisfies n/D < f. The
// numerator grows by c either way. This is a floor estimate: the largest
// delay at or below which the running fraction is still under the target.
func (e *EventStats) Recompute() {
	s := Summary{Min: e.hist.min}

	var nMedian, n122, n140, n145 uint64

	total := e.hist.total
	d122 := e.hist.below122
	d140 := e.hist.below140
	d145 := e.hist.below145

	for delay := uint32(0); delay < MicrosecondsPerSecond; delay++ {
		c := e.hist.buckets[delay]
		if c == 0 {
			continue
		}

		if total > 0 && float64(nMedian)/float64(total) < 0.50 {
			s.Median = delay
		}
		nMedian += c

		if delay < threshold90 {
			if d122 > 0 && float64(n122)/float64(d122) < 0.90 {
				s.P90Under122 = delay
			}
			n122 += c
		}

		if delay < threshold99 {
			if d140 > 0 && float64(n140)/float64(d140) < 0.99 {
				s.P99Under140 = delay
			}
			n140 += c
		}

		if delay < threshold999 {
			if d145 > 0 && float64(n145)/float64(d145) < 0.999 {
				s.P999Under145 = delay
			}
			n145 += c
		}
	}

	e.summary = s
}

// FormatSummary renders the cached summary as the single-line report used
// by UDP query responses and dumps:
//
//	min=<m> 50%=<med> 90%=<p1> 99%=<p2> 99.9%=<p3>
func (e *EventStats) FormatSummary() string {
	s := e.summary
	return fmt.Sprintf("min=%d 50%%=%d 90%%=%d 99%%=%d 99.9%%=%d",
		s.Min, s.Median, s.P90Under122, s.P99Under140, s.P999Under145)
}

// FormatDistribution renders the full distribution table: fixed 5µs bins
// from min rounded down to a multiple of 5 through max rounded up past the
// next multiple of 5. Only non-empty bins are emitted. Columns are
// tab-separated: bin lower bound, sample count, that count as a percentage
// of the total, and the cumulative percentage of samples strictly below the
// bin.
func (e *EventStats) FormatDistribution() string {
	rangeMin := e.hist.min - e.hist.min%distributionStep
	rangeMax := e.hist.max - e.hist.max%distributionStep + distributionStep

	var b strings.Builder
	b.WriteString("ExecTime\tTransNo\tWeight,%\tPercent\n")

	var below uint64
	for execTime := rangeMin; execTime < rangeMax; execTime += distributionStep {
		var transNo uint64
		for i := execTime; i < execTime+distributionStep; i++ {
			transNo += e.hist.buckets[i]
		}
		if transNo == 0 {
			continue
		}

		weight := float64(transNo) / float64(e.hist.total) * 100.0
		percent := float64(below) / float64(e.hist.total) * 100.0
		below += transNo

		fmt.Fprintf(&b, "%d\t%d\t%g\t%g\n", execTime, transNo, weight, percent)
	}

	return b.String()
}
