package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gateway-fm/walletpulse/pkg/types"
)

// CycleStats tracks cycle outcomes for the status API. Safe for concurrent
// use: the scheduler writes while the status server reads.
type CycleStats struct {
	startedAt time.Time
	retries   atomic.Uint64

	mu          sync.Mutex
	counts      map[types.CycleOutcome]uint64
	lastOutcome types.CycleOutcome
	lastError   string
	lastCycleAt time.Time

	confirm *ConfirmLatency
}

// NewCycleStats creates an empty tracker.
func NewCycleStats() *CycleStats {
	return &CycleStats{
		startedAt: time.Now().UTC(),
		counts:    make(map[types.CycleOutcome]uint64),
		confirm:   NewConfirmLatency(),
	}
}

// Record stores the outcome of a finished cycle. err is the cycle error for
// OutcomeFailed and nil otherwise.
func (s *CycleStats) Record(outcome types.CycleOutcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[outcome]++
	s.lastOutcome = outcome
	s.lastCycleAt = time.Now().UTC()
	if err != nil {
		s.lastError = err.Error()
	}
}

// RecordRetry counts a one-shot retry after a failed cycle.
func (s *CycleStats) RecordRetry() {
	s.retries.Add(1)
}

// RecordConfirm adds the submit-to-receipt latency of a confirmed transaction.
func (s *CycleStats) RecordConfirm(d time.Duration) {
	s.confirm.Add(d)
}

// Count returns how many cycles ended with outcome.
func (s *CycleStats) Count(outcome types.CycleOutcome) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[outcome]
}

// Fill copies the tracked values into st.
func (s *CycleStats) Fill(st *types.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.StartedAt = s.startedAt
	st.Cycles = make(map[string]uint64, len(s.counts))
	for k, v := range s.counts {
		st.Cycles[string(k)] = v
	}
	st.Retries = s.retries.Load()
	st.LastOutcome = s.lastOutcome
	st.LastError = s.lastError
	st.ConfirmLatency = s.confirm.Snapshot()
	if !s.lastCycleAt.IsZero() {
		t := s.lastCycleAt
		st.LastCycleAt = &t
	}
}
