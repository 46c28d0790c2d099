package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultInterval = 5 * time.Minute

// CycleRunner runs a single sync cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*CycleResult, error)
}

// Scheduler runs a cycle as soon as it starts and then once per interval.
// The interval is measured from the end of the previous cycle, so cycles
// never overlap.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	clock    clockwork.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(runner CycleRunner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		clock:    clockwork.NewRealClock(),
	}
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	slog.Info("scheduler start", "interval", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop halts future cycles and cancels the one in flight, then waits for the
// loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	slog.Info("scheduler stop")
	cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	s.runOnce(ctx)

	// timer, not ticker: a slow cycle must not queue up ticks
	timer := s.clock.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			s.runOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	_, err := s.runner.RunCycle(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrConfiguration):
		slog.Error("sync cycle aborted, fix the configuration", "error", err)
	case errors.Is(err, ErrCycleInProgress):
		slog.Warn("sync cycle skipped", "error", err)
	default:
		slog.Error("sync cycle failed, retrying next interval", "error", err, "next", s.interval)
	}
}
