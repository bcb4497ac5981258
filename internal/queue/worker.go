package queue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/metrics"
	"github.com/mschirtzinger/todosync/internal/schema"
)

// DefaultConcurrency is the number of consumers a Worker starts.
const DefaultConcurrency = 4

// Publisher receives the item state after a command is applied.
type Publisher interface {
	Publish(listID int64, item schema.Item)
}

// ItemPusher propagates an applied update outward. It must not block.
// *push.Dispatcher implements it.
type ItemPusher interface {
	UpdateItem(item schema.Item)
}

// Worker applies queued commands.
//
// Commands for the same item are not serialized: two consumers can apply
// updates to one item concurrently and the last store write wins.
type Worker struct {
	queue       *Queue
	store       db.Store
	publisher   Publisher
	pusher      ItemPusher
	concurrency int
	logger      *zap.SugaredLogger
	metrics     *metrics.Metrics
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets the number of consumers. Values below 1 are ignored.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// NewWorker creates a Worker consuming q.
func NewWorker(q *Queue, store db.Store, publisher Publisher, pusher ItemPusher, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       q,
		store:       store,
		publisher:   publisher,
		pusher:      pusher,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "worker")
	return w
}

// Run starts the consumers and blocks until ctx is done or the queue is
// closed and drained. Command failures are logged, never returned.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infof("Starting %d queue consumers", w.concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.consume(ctx)
		})
	}

	err := g.Wait()
	w.logger.Infof("Queue consumers stopped")
	return err
}

func (w *Worker) consume(ctx context.Context) error {
	for {
		cmd, err := w.queue.Next(ctx)
		if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to take command: %w", err)
		}
		w.Process(ctx, cmd)
	}
}

// Process applies a single command: write the patched fields, publish the
// stored result, then push outward. A command for a missing item is
// dropped.
//
// Only the patched columns are written, so an external ID linked by a
// concurrent push survives and is carried by the outbound update.
func (w *Worker) Process(ctx context.Context, cmd Command) {
	updated, err := w.store.PatchItem(ctx, cmd.ItemID, cmd.Patch)
	if errors.Is(err, db.ErrNotFound) {
		w.logger.Warnf("Dropping command %s: item %d no longer exists", cmd.ID, cmd.ItemID)
		w.metrics.RecordCommand(metrics.CommandDropped)
		return
	}
	if err != nil {
		w.logger.Errorf("Failed to apply command %s %s to item %d: %v", cmd.ID, cmd.Patch, cmd.ItemID, err)
		w.metrics.RecordCommand(metrics.CommandFailed)
		return
	}

	w.logger.Debugf("Applied command %s %s to item %d", cmd.ID, cmd.Patch, cmd.ItemID)
	w.metrics.RecordCommand(metrics.CommandApplied)
	w.publisher.Publish(updated.ListID, updated)
	w.pusher.UpdateItem(updated)
}
