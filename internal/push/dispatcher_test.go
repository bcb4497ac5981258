package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mschirtzinger/todosync/internal/external"
	"github.com/mschirtzinger/todosync/internal/schema"
)

// fakePusher records calls and returns the configured error per operation.
type fakePusher struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	block chan struct{}
}

func newFakePusher() *fakePusher {
	return &fakePusher{errs: make(map[string]error)}
}

func (f *fakePusher) record(op string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.errs[op]
}

func (f *fakePusher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePusher) CreateExternalList(_ context.Context, list *schema.List) error {
	err := f.record(OpCreateList)
	if err == nil {
		list.ExternalID = "ext"
	}
	return err
}
func (f *fakePusher) UpdateExternalList(context.Context, schema.List) error {
	return f.record(OpUpdateList)
}
func (f *fakePusher) DeleteExternalList(context.Context, schema.List) error {
	return f.record(OpDeleteList)
}
func (f *fakePusher) CreateExternalItem(context.Context, *schema.Item) error {
	return f.record(OpCreateItem)
}
func (f *fakePusher) UpdateExternalItem(context.Context, schema.Item) error {
	return f.record(OpUpdateItem)
}
func (f *fakePusher) DeleteExternalItem(context.Context, schema.Item) error {
	return f.record(OpDeleteItem)
}

func TestDispatcher_RunsAllOperations(t *testing.T) {
	pusher := newFakePusher()
	d := New(pusher, zaptest.NewLogger(t).Sugar(), nil)
	defer d.Close()

	d.CreateList(schema.List{ID: 1, Name: "a"})
	d.UpdateList(schema.List{ID: 1, Name: "a"})
	d.DeleteList(schema.List{ID: 1, Name: "a"})
	d.CreateItem(schema.Item{ID: 1, ListID: 1})
	d.UpdateItem(schema.Item{ID: 1, ListID: 1})
	d.DeleteItem(schema.Item{ID: 1, ListID: 1})
	d.Wait()

	assert.ElementsMatch(t, []string{
		OpCreateList, OpUpdateList, OpDeleteList,
		OpCreateItem, OpUpdateItem, OpDeleteItem,
	}, pusher.Calls())
}

func TestDispatcher_DoesNotBlockCaller(t *testing.T) {
	pusher := newFakePusher()
	pusher.block = make(chan struct{})
	d := New(pusher, zaptest.NewLogger(t).Sugar(), nil)

	done := make(chan struct{})
	go func() {
		d.UpdateItem(schema.Item{ID: 1, ListID: 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("UpdateItem blocked on the push")
	}

	close(pusher.block)
	d.Close()
	assert.Equal(t, []string{OpUpdateItem}, pusher.Calls())
}

func TestDispatcher_ReportsFailures(t *testing.T) {
	pusher := newFakePusher()
	boom := errors.New("connection refused")
	pusher.errs[OpUpdateItem] = boom
	pusher.errs[OpDeleteItem] = fmt.Errorf("item 3: %w", external.ErrNotLinked)

	d := New(pusher, zaptest.NewLogger(t).Sugar(), nil)
	defer d.Close()

	d.UpdateItem(schema.Item{ID: 3, ListID: 1})
	d.DeleteItem(schema.Item{ID: 3, ListID: 1})
	d.Wait()

	select {
	case f := <-d.Errors():
		assert.Equal(t, OpUpdateItem, f.Op)
		assert.ErrorIs(t, f.Err, boom)
	default:
		t.Fatal("expected a failure on Errors()")
	}

	// Skipped pushes are not failures.
	select {
	case f := <-d.Errors():
		t.Fatalf("unexpected failure: %+v", f)
	default:
	}
}

func TestDispatcher_CopiesArguments(t *testing.T) {
	pusher := newFakePusher()
	d := New(pusher, nil, nil)
	defer d.Close()

	list := schema.List{ID: 1, Name: "a"}
	d.CreateList(list)
	d.Wait()

	// The caller's value is untouched by the background task.
	assert.Empty(t, list.ExternalID)
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	pusher := newFakePusher()
	d := New(pusher, zaptest.NewLogger(t).Sugar(), nil)
	d.Close()

	d.UpdateList(schema.List{ID: 1, Name: "a"})
	d.Wait()
	require.Empty(t, pusher.Calls())
}
