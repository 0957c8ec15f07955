package metrics

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/gateway-fm/walletpulse/pkg/types"
)

// confirmReservoirSize bounds the samples kept for percentile estimation.
// A dispatcher confirms at most a few thousand transactions a day.
const confirmReservoirSize = 2048

// Confirmation latency bucket upper bounds in milliseconds. The last bucket
// is open-ended and only reachable when the confirm timeout is raised.
var confirmBucketBounds = []float64{1000, 3000, 5000, 10000}

var confirmBucketLabels = []string{"0-1s", "1-3s", "3-5s", "5-10s", "10s+"}

// ConfirmLatency tracks submit-to-receipt latency with running min/max/avg
// and reservoir-sampled percentiles.
type ConfirmLatency struct {
	mu sync.Mutex

	count int64
	sum   float64
	min   float64
	max   float64

	reservoir []float64
	seen      uint64
	buckets   []int64

	randState uint64 // xorshift64*
}

// NewConfirmLatency creates an empty tracker.
func NewConfirmLatency() *ConfirmLatency {
	return &ConfirmLatency{
		min:       math.MaxFloat64,
		reservoir: make([]float64, 0, confirmReservoirSize),
		buckets:   make([]int64, len(confirmBucketBounds)+1),
		randState: 1,
	}
}

// Add records one confirmation.
func (c *ConfirmLatency) Add(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.count++
	c.sum += ms
	c.seen++
	c.min = min(c.min, ms)
	c.max = max(c.max, ms)
	c.buckets[bucketIndex(ms)]++

	// Algorithm R
	if len(c.reservoir) < confirmReservoirSize {
		c.reservoir = append(c.reservoir, ms)
		return
	}
	if j := c.next() % c.seen; j < confirmReservoirSize {
		c.reservoir[j] = ms
	}
}

func bucketIndex(ms float64) int {
	for i, bound := range confirmBucketBounds {
		if ms < bound {
			return i
		}
	}
	return len(confirmBucketBounds)
}

func (c *ConfirmLatency) next() uint64 {
	c.randState ^= c.randState >> 12
	c.randState ^= c.randState << 25
	c.randState ^= c.randState >> 27
	return c.randState * 0x2545F4914F6CDD1D
}

// Snapshot returns the current statistics, or nil before the first sample.
func (c *ConfirmLatency) Snapshot() *types.LatencyStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return nil
	}

	sorted := slices.Clone(c.reservoir)
	slices.Sort(sorted)

	st := &types.LatencyStats{
		Count: int(c.count),
		Min:   c.min,
		Max:   c.max,
		Avg:   c.sum / float64(c.count),
		P50:   percentile(sorted, 0.50),
		P90:   percentile(sorted, 0.90),
		P99:   percentile(sorted, 0.99),
	}
	for i, label := range confirmBucketLabels {
		st.Buckets = append(st.Buckets, types.LatencyBucket{Label: label, Count: int(c.buckets[i])})
	}
	return st
}

// percentile interpolates the p-th percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}
