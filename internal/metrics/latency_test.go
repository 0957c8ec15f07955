package metrics

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gateway-fm/walletpulse/pkg/types"
)

func TestConfirmLatencyBasic(t *testing.T) {
	c := NewConfirmLatency()
	for i := 0; i < 100; i++ {
		c.Add(time.Duration(i) * time.Millisecond)
	}

	st := c.Snapshot()
	if st == nil {
		t.Fatal("expected non-nil stats")
	}
	if st.Count != 100 {
		t.Errorf("count = %d, want 100", st.Count)
	}
	if st.Min != 0 || st.Max != 99 {
		t.Errorf("min/max = %v/%v, want 0/99", st.Min, st.Max)
	}
	if math.Abs(st.Avg-49.5) > 0.01 {
		t.Errorf("avg = %v, want 49.5", st.Avg)
	}
	if math.Abs(st.P50-49.5) > 0.01 {
		t.Errorf("p50 = %v, want 49.5", st.P50)
	}
	if st.P99 < st.P90 || st.P90 < st.P50 {
		t.Errorf("percentiles not monotonic: %+v", st)
	}
}

func TestConfirmLatencyEmpty(t *testing.T) {
	if st := NewConfirmLatency().Snapshot(); st != nil {
		t.Errorf("Snapshot() = %+v, want nil", st)
	}
}

func TestConfirmLatencyBuckets(t *testing.T) {
	c := NewConfirmLatency()
	samples := []time.Duration{
		500 * time.Millisecond,
		2 * time.Second, 2500 * time.Millisecond,
		4 * time.Second,
		9 * time.Second,
		12 * time.Second,
	}
	for _, d := range samples {
		c.Add(d)
	}

	want := map[string]int{"0-1s": 1, "1-3s": 2, "3-5s": 1, "5-10s": 1, "10s+": 1}
	st := c.Snapshot()
	if len(st.Buckets) != len(want) {
		t.Fatalf("buckets = %+v", st.Buckets)
	}
	for _, b := range st.Buckets {
		if b.Count != want[b.Label] {
			t.Errorf("bucket %s = %d, want %d", b.Label, b.Count, want[b.Label])
		}
	}
}

func TestConfirmLatencyReservoirBounded(t *testing.T) {
	c := NewConfirmLatency()
	for i := 0; i < 3*confirmReservoirSize; i++ {
		c.Add(time.Duration(i%5000) * time.Millisecond)
	}
	if len(c.reservoir) != confirmReservoirSize {
		t.Errorf("reservoir = %d samples, want %d", len(c.reservoir), confirmReservoirSize)
	}
	if st := c.Snapshot(); st.Count != 3*confirmReservoirSize {
		t.Errorf("count = %d", st.Count)
	}
}

func TestConfirmLatencyConcurrent(t *testing.T) {
	c := NewConfirmLatency()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Add(time.Second)
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	if st := c.Snapshot(); st.Count != 1000 {
		t.Errorf("count = %d, want 1000", st.Count)
	}
}

func TestCycleStatsConfirmLatency(t *testing.T) {
	s := NewCycleStats()

	var st types.Status
	s.Fill(&st)
	if st.ConfirmLatency != nil {
		t.Error("ConfirmLatency set before any confirmation")
	}

	s.RecordConfirm(1500 * time.Millisecond)
	s.Fill(&st)
	if st.ConfirmLatency == nil || st.ConfirmLatency.Count != 1 || st.ConfirmLatency.Max != 1500 {
		t.Errorf("ConfirmLatency = %+v", st.ConfirmLatency)
	}
}
