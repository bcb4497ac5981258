package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/todosync/internal/schema"
)

func TestQueue_FIFO(t *testing.T) {
	q := New(0, nil)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(NewCommand(i, schema.ItemPatch{})))
	}
	assert.Equal(t, 3, q.Len())

	for i := int64(1); i <= 3; i++ {
		cmd, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, cmd.ItemID)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestNewCommand(t *testing.T) {
	done := true
	a := NewCommand(7, schema.ItemPatch{Done: &done})
	b := NewCommand(7, schema.ItemPatch{Done: &done})

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(7), a.ItemID)
	assert.False(t, a.EnqueuedAt.IsZero())
}

func TestQueue_Capacity(t *testing.T) {
	q := New(1, nil)

	require.NoError(t, q.Enqueue(NewCommand(1, schema.ItemPatch{})))
	assert.ErrorIs(t, q.Enqueue(NewCommand(2, schema.ItemPatch{})), ErrFull)

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.NoError(t, q.Enqueue(NewCommand(3, schema.ItemPatch{})))
}

func TestQueue_NextBlocksUntilAvailable(t *testing.T) {
	q := New(0, nil)

	got := make(chan Command, 1)
	go func() {
		cmd, err := q.Next(context.Background())
		if err == nil {
			got <- cmd
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before enqueue")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, q.Enqueue(NewCommand(42, schema.ItemPatch{})))

	select {
	case cmd := <-got:
		assert.Equal(t, int64(42), cmd.ItemID)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after enqueue")
	}
}

func TestQueue_NextRespectsContext(t *testing.T) {
	q := New(0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseDrainsThenReportsClosed(t *testing.T) {
	q := New(0, nil)
	require.NoError(t, q.Enqueue(NewCommand(1, schema.ItemPatch{})))

	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue(NewCommand(2, schema.ItemPatch{})), ErrClosed)

	cmd, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), cmd.ItemID)

	_, err = q.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_MultipleConsumersAllWake(t *testing.T) {
	q := New(0, nil)
	const n = 50

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				cmd, err := q.Next(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[cmd.ItemID] = true
				mu.Unlock()
			}
		}()
	}

	for i := int64(1); i <= n; i++ {
		require.NoError(t, q.Enqueue(NewCommand(i, schema.ItemPatch{})))
	}
	q.Close()
	wg.Wait()

	assert.Len(t, seen, n)
}
