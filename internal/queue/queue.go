// Package queue decouples item update requests from their application.
//
// Requests become Commands on an in-memory FIFO and a pool of workers
// applies them to the store. The queue is not durable: commands still
// pending when the process exits are lost.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/todosync/internal/metrics"
	"github.com/mschirtzinger/todosync/internal/schema"
)

var (
	// ErrClosed is returned by Enqueue after Close, and by Next once the
	// queue is closed and drained.
	ErrClosed = errors.New("queue closed")

	// ErrFull is returned by Enqueue when a bounded queue is at capacity.
	ErrFull = errors.New("queue full")
)

// Command asks for a partial update of one item.
type Command struct {
	ID         string           `json:"id"`
	ItemID     int64            `json:"itemId"`
	Patch      schema.ItemPatch `json:"patch"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
}

// NewCommand creates a command with a fresh ID.
func NewCommand(itemID int64, patch schema.ItemPatch) Command {
	return Command{
		ID:         uuid.NewString(),
		ItemID:     itemID,
		Patch:      patch,
		EnqueuedAt: time.Now(),
	}
}

// Queue is a thread-safe FIFO of commands.
//
// signal is buffered with size 1 and coalesces wakeups; a consumer that
// takes a command re-signals while more remain so that other consumers
// wake up too. Close closes signal, which wakes every waiter.
type Queue struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
	signal   chan struct{}
	capacity int

	metrics *metrics.Metrics
}

// New creates a queue. capacity <= 0 means unbounded. m may be nil.
func New(capacity int, m *metrics.Metrics) *Queue {
	return &Queue{
		commands: make([]Command, 0, 64),
		signal:   make(chan struct{}, 1),
		capacity: capacity,
		metrics:  m,
	}
}

// Enqueue appends cmd. It never blocks.
func (q *Queue) Enqueue(cmd Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.capacity > 0 && len(q.commands) >= q.capacity {
		return ErrFull
	}

	q.commands = append(q.commands, cmd)
	q.metrics.SetQueueDepth(len(q.commands))
	q.notifyLocked()
	return nil
}

// TryDequeue removes the front command without blocking.
func (q *Queue) TryDequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return Command{}, false
	}

	cmd := q.commands[0]
	q.commands[0] = Command{}
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}

	q.metrics.SetQueueDepth(len(q.commands))
	if len(q.commands) > 0 {
		q.notifyLocked()
	}
	return cmd, true
}

// notifyLocked signals availability without blocking. Must hold q.mu.
func (q *Queue) notifyLocked() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Next blocks until a command is available, ctx is done, or the queue is
// closed and drained.
func (q *Queue) Next(ctx context.Context) (Command, error) {
	for {
		if cmd, ok := q.TryDequeue(); ok {
			return cmd, nil
		}

		q.mu.Lock()
		drained := q.closed && len(q.commands) == 0
		q.mu.Unlock()
		if drained {
			return Command{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Command{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close stops accepting commands. Pending ones can still be taken.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
