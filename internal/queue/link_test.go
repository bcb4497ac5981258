package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/external"
	"github.com/mschirtzinger/todosync/internal/external/externaltest"
	"github.com/mschirtzinger/todosync/internal/notify"
	"github.com/mschirtzinger/todosync/internal/schema"
	reconcile "github.com/mschirtzinger/todosync/internal/sync"
)

// linkBeforePatch runs link once, after the worker has taken a command and
// before its write reaches the store.
type linkBeforePatch struct {
	db.Store
	link func(ctx context.Context) error
}

func (s *linkBeforePatch) PatchItem(ctx context.Context, id int64, patch schema.ItemPatch) (schema.Item, error) {
	if s.link != nil {
		if err := s.link(ctx); err != nil {
			return schema.Item{}, err
		}
		s.link = nil
	}
	return s.Store.PatchItem(ctx, id, patch)
}

func TestWorker_ProcessKeepsConcurrentLink(t *testing.T) {
	ctx := context.Background()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema(ctx))

	fake := externaltest.NewServer(t)
	fake.PutList("ext-1", "Groceries")
	client, err := external.NewClient(fake.URL)
	require.NoError(t, err)

	list := &schema.List{Name: "Groceries", ExternalID: "ext-1"}
	require.NoError(t, database.CreateList(ctx, list))
	item := &schema.Item{ListID: list.ID, Description: "Buy milk"}
	require.NoError(t, database.CreateItem(ctx, item))

	adapter := external.NewAdapter(client, database)
	pending := *item
	store := &linkBeforePatch{
		Store: database,
		link: func(ctx context.Context) error {
			return adapter.CreateExternalItem(ctx, &pending)
		},
	}

	sink := &recordingSink{}
	w := NewWorker(New(0, nil), store, sink, sink, WithLogger(zaptest.NewLogger(t).Sugar()))
	w.Process(ctx, NewCommand(item.ID, schema.ItemPatch{Done: boolPtr(true)}))

	require.NotEmpty(t, pending.ExternalID)
	got, err := database.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Done)
	assert.Equal(t, pending.ExternalID, got.ExternalID)

	// The outbound update carries the link so it can reach the external item.
	require.Len(t, sink.pushed, 1)
	assert.Equal(t, pending.ExternalID, sink.pushed[0].ExternalID)

	// The next pull matches the external item instead of importing a copy.
	reconciler := reconcile.NewReconciler(client, database, notify.New(nil, nil), zaptest.NewLogger(t).Sugar(), nil)
	res, err := reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.ItemsCreated)

	items, err := database.ListItems(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, pending.ExternalID, items[0].ExternalID)
	assert.Equal(t, "Buy milk", items[0].Description)
}
