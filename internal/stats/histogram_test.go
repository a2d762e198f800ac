package stats

import "testing"

func TestHistogramWraparound(t *testing.T) {
	// A seconds-scale component is discarded: 1,000,042µs lands in the
	// same bucket as 42µs.
	wrapped := &Histogram{}
	wrapped.Observe(1_000_042)

	plain := &Histogram{}
	plain.Observe(42)

	if got, want := wrapped.BucketCount(42), plain.BucketCount(42); got != want {
		t.Errorf("bucket 42 count = %d, want %d", got, want)
	}
	if wrapped.Count() != 1 {
		t.Errorf("Count() = %d, want 1", wrapped.Count())
	}
	if wrapped.Min() != 42 || wrapped.Max() != 42 {
		t.Errorf("min/max = %d/%d, want 42/42", wrapped.Min(), wrapped.Max())
	}
	if wrapped.below122 != 1 || wrapped.below140 != 1 || wrapped.below145 != 1 {
		t.Errorf("threshold counts = %d/%d/%d, want 1/1/1",
			wrapped.below122, wrapped.below140, wrapped.below145)
	}
}

func TestHistogramMinSentinel(t *testing.T) {
	h := &Histogram{}
	if h.Min() != 0 {
		t.Fatalf("empty histogram Min() = %d, want 0", h.Min())
	}

	h.Observe(300)
	if h.Min() != 300 {
		t.Errorf("after Observe(300): Min() = %d, want 300", h.Min())
	}

	h.Observe(50)
	if h.Min() != 50 {
		t.Errorf("after Observe(50): Min() = %d, want 50", h.Min())
	}
}

func TestHistogramThresholdCounts(t *testing.T) {
	h := &Histogram{}
	for _, d := range []uint32{121, 122, 139, 140, 144, 145} {
		h.Observe(d)
	}

	if h.below122 != 1 {
		t.Errorf("below122 = %d, want 1", h.below122)
	}
	if h.below140 != 3 {
		t.Errorf("below140 = %d, want 3", h.below140)
	}
	if h.below145 != 5 {
		t.Errorf("below145 = %d, want 5", h.below145)
	}
}

func TestHistogramBucketSumMatchesTotal(t *testing.T) {
	h := &Histogram{}
	samples := []uint32{0, 1, 1, 50, 121, 121, 121, 999_999, 1_000_000, 1_000_001}
	for _, d := range samples {
		h.Observe(d)
	}

	var sum uint64
	for _, d := range []uint32{0, 1, 50, 121, 999_999} {
		sum += h.BucketCount(d)
	}
	if sum != h.Count() {
		t.Errorf("bucket sum = %d, total = %d", sum, h.Count())
	}
	if h.Count() != uint64(len(samples)) {
		t.Errorf("Count() = %d, want %d", h.Count(), len(samples))
	}
	// 1,000,000 wraps to 0, 1,000,001 wraps to 1
	if h.BucketCount(0) != 2 {
		t.Errorf("bucket 0 = %d, want 2", h.BucketCount(0))
	}
	if h.BucketCount(1) != 3 {
		t.Errorf("bucket 1 = %d, want 3", h.BucketCount(1))
	}
}
