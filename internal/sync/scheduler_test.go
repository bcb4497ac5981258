package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingCycler struct {
	runs atomic.Int32
}

func (c *countingCycler) RunCycle(context.Context) {
	c.runs.Add(1)
}

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	cycler := &countingCycler{}
	s := NewScheduler(cycler, 20*time.Millisecond, zaptest.NewLogger(t).Sugar())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return cycler.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	require.NoError(t, <-errCh)

	stopped := cycler.runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, cycler.runs.Load(), "no cycles after Stop")
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	cycler := &countingCycler{}
	s := NewScheduler(cycler, time.Hour, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return cycler.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	s := NewScheduler(&countingCycler{}, time.Hour, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.done != nil
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, s.Start(context.Background()))
	s.Stop()
	require.NoError(t, <-errCh)
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s := NewScheduler(&countingCycler{}, 0, nil)
	assert.Equal(t, DefaultInterval, s.interval)
	assert.NotPanics(t, s.Stop)
}

// The scheduler and reconciler together never run overlapping cycles.
func TestScheduler_OverlappingTicksSkipped(t *testing.T) {
	fetcher := &blockingFetcher{entered: make(chan struct{}, 16), release: make(chan struct{})}
	r := NewReconciler(fetcher, nil, &recordingPublisher{}, zaptest.NewLogger(t).Sugar(), nil)
	s := NewScheduler(r, 10*time.Millisecond, zaptest.NewLogger(t).Sugar())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	<-fetcher.entered
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	close(fetcher.release)
	s.Stop()
	require.NoError(t, <-errCh)
}
