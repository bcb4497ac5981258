package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is how often the scheduler starts a cycle.
const DefaultInterval = 10 * time.Second

// Cycler runs one reconciliation cycle. *Reconciler implements it.
type Cycler interface {
	RunCycle(ctx context.Context)
}

// Scheduler starts a cycle immediately and then on every tick.
//
// Each tick starts its cycle in its own goroutine, so a slow cycle does not
// delay the clock; overlapping ticks are rejected by the Reconciler's
// single-flight guard.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	logger   *zap.SugaredLogger

	mu         gosync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
	cycles     gosync.WaitGroup
}

// NewScheduler creates a Scheduler. A non-positive interval means DefaultInterval.
func NewScheduler(cycler Cycler, interval time.Duration, logger *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		cycler:   cycler,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs the schedule. It blocks until ctx is cancelled or Stop is called,
// and returns once every cycle it started has finished.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	defer func() {
		cancel()
		s.cycles.Wait()
		close(done)
		s.logger.Infof("Sync scheduler stopped")
	}()

	s.logger.Infof("Starting sync scheduler (interval %s)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		s.cycler.RunCycle(ctx)
	}()
}

// Stop cancels the schedule and waits for Start to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancelFunc, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
