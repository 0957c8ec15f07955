// Package scheduler drives the dispatch cycle forever with randomized,
// human-like pauses and a single retry after a failed cycle.
package scheduler

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/gateway-fm/walletpulse/internal/account"
	"github.com/gateway-fm/walletpulse/internal/metrics"
	"github.com/gateway-fm/walletpulse/pkg/types"
)

// Delay bounds, in seconds.
const (
	RetryMinSec = 5
	RetryMaxSec = 10

	BaseMinSec  = 30
	BaseMaxSec  = 150
	JitterRatio = 0.1
	MinDelaySec = 10
)

// Cycle is one unit of work run by the loop.
type Cycle interface {
	RunCycle(ctx context.Context) (types.CycleOutcome, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds Loop dependencies.
type Config struct {
	Cycle  Cycle
	Rand   account.Rand
	Sleep  SleepFunc
	Stats  *metrics.CycleStats
	Logger *slog.Logger
}

// Loop repeats the cycle until its context is cancelled.
type Loop struct {
	cycle  Cycle
	rnd    account.Rand
	sleep  SleepFunc
	stats  *metrics.CycleStats
	logger *slog.Logger
}

// New creates a Loop.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = account.NewRand()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return &Loop{
		cycle:  cfg.Cycle,
		rnd:    rnd,
		sleep:  sleep,
		stats:  cfg.Stats,
		logger: logger,
	}
}

// Run executes cycles until ctx is cancelled and then returns ctx.Err().
// Cycle failures never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("scheduler started")
	for {
		if err := l.Once(ctx); err != nil {
			return err
		}

		delay := l.NextDelay()
		l.logger.Info("waiting before next cycle", slog.Duration("delay", delay))
		if err := l.sleep(ctx, delay); err != nil {
			l.logger.Info("scheduler stopped")
			return err
		}
	}
}

// Once runs a cycle and, if it fails, waits RetryMinSec..RetryMaxSec seconds
// and runs it once more. A second failure is logged and dropped. The only
// error returned is ctx.Err() when cancelled during the retry wait.
func (l *Loop) Once(ctx context.Context) error {
	_, err := l.cycle.RunCycle(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	wait := time.Duration(account.UniformInt(l.rnd, RetryMinSec, RetryMaxSec)) * time.Second
	l.logger.Warn("cycle failed, retrying",
		slog.String("error", err.Error()),
		slog.Duration("wait", wait),
	)
	if err := l.sleep(ctx, wait); err != nil {
		return err
	}

	if l.stats != nil {
		l.stats.RecordRetry()
	}
	if _, err := l.cycle.RunCycle(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Error("cycle failed on retry", slog.String("error", err.Error()))
	}
	return nil
}

// NextDelay draws the pause before the next cycle: a base of
// BaseMinSec..BaseMaxSec seconds, jittered by up to ±JitterRatio of the base
// (rounded down), never below MinDelaySec.
func (l *Loop) NextDelay() time.Duration {
	base := account.UniformInt(l.rnd, BaseMinSec, BaseMaxSec)
	jitter := int(math.Floor(float64(base) * account.Uniform(l.rnd, -JitterRatio, JitterRatio)))
	sec := max(MinDelaySec, base+jitter)
	return time.Duration(sec) * time.Second
}

// Sleep waits for d, returning early with ctx.Err() if ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
