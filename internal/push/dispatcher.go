// Package push runs outbound calls to the external system in the background.
//
// Callers hand a mutation to the Dispatcher and return immediately. The call
// runs detached from the caller's context, its outcome is logged and counted,
// and failures are never retried.
package push

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mschirtzinger/todosync/internal/external"
	"github.com/mschirtzinger/todosync/internal/metrics"
	"github.com/mschirtzinger/todosync/internal/schema"
)

// Operation names used in logs and metrics.
const (
	OpCreateList = "create_list"
	OpUpdateList = "update_list"
	OpDeleteList = "delete_list"
	OpCreateItem = "create_item"
	OpUpdateItem = "update_item"
	OpDeleteItem = "delete_item"
)

// errorBuffer bounds the Errors channel; failures beyond it are only logged.
const errorBuffer = 64

// Pusher performs the outbound operations. *external.Adapter implements it.
type Pusher interface {
	CreateExternalList(ctx context.Context, list *schema.List) error
	UpdateExternalList(ctx context.Context, list schema.List) error
	DeleteExternalList(ctx context.Context, list schema.List) error
	CreateExternalItem(ctx context.Context, item *schema.Item) error
	UpdateExternalItem(ctx context.Context, item schema.Item) error
	DeleteExternalItem(ctx context.Context, item schema.Item) error
}

// Failure describes a push that did not succeed.
type Failure struct {
	Op  string
	Err error
}

// Dispatcher runs pushes as detached background tasks.
type Dispatcher struct {
	pusher  Pusher
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errs   chan Failure

	mu     sync.Mutex
	closed bool
}

// New creates a Dispatcher. logger and m may be nil.
func New(pusher Pusher, logger *zap.SugaredLogger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		pusher:  pusher,
		logger:  logger.With("component", "push"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		errs:    make(chan Failure, errorBuffer),
	}
}

// Errors returns failed pushes. Skipped pushes are not reported here.
// When nobody drains the channel, failures past the buffer are dropped.
func (d *Dispatcher) Errors() <-chan Failure {
	return d.errs
}

// Go runs fn in the background. It never blocks on fn.
func (d *Dispatcher) Go(op string, fn func(ctx context.Context) error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warnf("Dispatcher closed, dropping %s", op)
		d.metrics.RecordPush(op, metrics.ResultSkipped)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.finish(op, fn(d.ctx))
	}()
}

func (d *Dispatcher) finish(op string, err error) {
	switch {
	case err == nil:
		d.metrics.RecordPush(op, metrics.ResultOK)
	case errors.Is(err, external.ErrNotLinked):
		d.logger.Debugf("Skipped %s: %v", op, err)
		d.metrics.RecordPush(op, metrics.ResultSkipped)
	default:
		d.logger.Errorf("Failed to %s: %v", op, err)
		d.metrics.RecordPush(op, metrics.ResultFailed)
		select {
		case d.errs <- Failure{Op: op, Err: err}:
		default:
		}
	}
}

// Wait blocks until every dispatched push has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting pushes and waits for in-flight ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}

// CreateList creates the list externally. list is copied.
func (d *Dispatcher) CreateList(list schema.List) {
	d.Go(OpCreateList, func(ctx context.Context) error {
		return d.pusher.CreateExternalList(ctx, &list)
	})
}

// UpdateList pushes the list name.
func (d *Dispatcher) UpdateList(list schema.List) {
	d.Go(OpUpdateList, func(ctx context.Context) error {
		return d.pusher.UpdateExternalList(ctx, list)
	})
}

// DeleteList deletes the list externally from a snapshot taken before
// local deletion.
func (d *Dispatcher) DeleteList(list schema.List) {
	d.Go(OpDeleteList, func(ctx context.Context) error {
		return d.pusher.DeleteExternalList(ctx, list)
	})
}

// CreateItem creates the item externally. item is copied.
func (d *Dispatcher) CreateItem(item schema.Item) {
	d.Go(OpCreateItem, func(ctx context.Context) error {
		return d.pusher.CreateExternalItem(ctx, &item)
	})
}

// UpdateItem pushes the item's current state.
func (d *Dispatcher) UpdateItem(item schema.Item) {
	d.Go(OpUpdateItem, func(ctx context.Context) error {
		return d.pusher.UpdateExternalItem(ctx, item)
	})
}

// DeleteItem deletes the item externally from a snapshot taken before
// local deletion.
func (d *Dispatcher) DeleteItem(item schema.Item) {
	d.Go(OpDeleteItem, func(ctx context.Context) error {
		return d.pusher.DeleteExternalItem(ctx, item)
	})
}
