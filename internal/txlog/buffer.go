package txlog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gateway-fm/walletpulse/internal/metrics"
)

// Sink receives each flushed batch.
type Sink interface {
	Name() string
	Write(entries []Entry) error
}

// Buffer collects entries between flushes. Append and Flush may be called
// from different goroutines.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry

	sinks   []Sink
	metrics *metrics.PrometheusMetrics
	logger  *slog.Logger
}

// BufferConfig holds Buffer dependencies.
type BufferConfig struct {
	Sinks   []Sink
	Metrics *metrics.PrometheusMetrics
	Logger  *slog.Logger
}

// NewBuffer creates an empty buffer writing to cfg.Sinks in order.
func NewBuffer(cfg BufferConfig) *Buffer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		sinks:   cfg.Sinks,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Append adds an entry to the buffer.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	b.metrics.SetBuffered(len(b.entries))
}

// Len returns the number of entries waiting for the next flush.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Flush takes a snapshot of the buffer, clears it, and writes the snapshot to
// every sink. It returns the snapshot size. Sink failures do not stop the
// remaining sinks and the snapshot is not re-queued.
func (b *Buffer) Flush() (int, error) {
	b.mu.Lock()
	snapshot := b.entries
	b.entries = nil
	b.metrics.SetBuffered(0)
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return 0, nil
	}

	var errs []error
	for _, s := range b.sinks {
		if err := s.Write(snapshot); err != nil {
			b.logger.Error("log sink write failed",
				slog.String("sink", s.Name()),
				slog.Int("entries", len(snapshot)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}

	err := errors.Join(errs...)
	b.metrics.LogFlushed(len(snapshot), err)
	if err == nil {
		b.logger.Info("flushed transaction log", slog.Int("entries", len(snapshot)))
	}
	return len(snapshot), err
}
