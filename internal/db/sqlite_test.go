package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/todosync/internal/schema"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.InitSchema(context.Background()))
	return store
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "todosync.db")

	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, dbPath, store.Path())
	require.NoError(t, store.InitSchema(context.Background()))
	// Second call is a no-op.
	require.NoError(t, store.InitSchema(context.Background()))
}

func TestListCRUD(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	list := &schema.List{Name: "Groceries"}
	require.NoError(t, store.CreateList(ctx, list))
	require.NotZero(t, list.ID)

	got, err := store.GetList(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Name)
	assert.Empty(t, got.ExternalID)

	got.Name = "Errands"
	require.NoError(t, store.UpdateList(ctx, &got))
	require.NoError(t, store.SetListExternalID(ctx, list.ID, "ext-1"))

	byExt, err := store.GetListByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, list.ID, byExt.ID)
	assert.Equal(t, "Errands", byExt.Name)

	lists, err := store.ListLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)

	require.NoError(t, store.DeleteList(ctx, list.ID))
	_, err = store.GetList(ctx, list.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNotFound(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	_, err := store.GetList(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetListByExternalID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.UpdateList(ctx, &schema.List{ID: 42, Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.SetListExternalID(ctx, 42, "ext-1"), ErrNotFound)

	err = store.DeleteList(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateList_Validation(t *testing.T) {
	store := setupTestDB(t)
	err := store.CreateList(context.Background(), &schema.List{})
	require.Error(t, err)
}

func TestItemCRUD(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	list := &schema.List{Name: "Groceries"}
	require.NoError(t, store.CreateList(ctx, list))

	item := &schema.Item{ListID: list.ID, Description: "Buy milk"}
	require.NoError(t, store.CreateItem(ctx, item))
	require.NotZero(t, item.ID)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, *item, got)

	got.Done = true
	got.Description = "Buy oat milk"
	require.NoError(t, store.UpdateItem(ctx, &got))
	require.NoError(t, store.SetItemExternalID(ctx, item.ID, "item-1"))
	got.ExternalID = "item-1"

	items, err := store.ListItems(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, got, items[0])

	require.NoError(t, store.DeleteItem(ctx, item.ID))
	_, err = store.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteItem(ctx, item.ID), ErrNotFound)
}

func TestUpdate_KeepsExternalIDFromStaleCopy(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	list := &schema.List{Name: "Groceries"}
	require.NoError(t, store.CreateList(ctx, list))
	item := &schema.Item{ListID: list.ID, Description: "Buy milk"}
	require.NoError(t, store.CreateItem(ctx, item))

	// Copies read before the rows were linked.
	staleList, err := store.GetList(ctx, list.ID)
	require.NoError(t, err)
	staleItem, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)

	require.NoError(t, store.SetListExternalID(ctx, list.ID, "ext-1"))
	require.NoError(t, store.SetItemExternalID(ctx, item.ID, "item-1"))

	staleList.Name = "Errands"
	require.NoError(t, store.UpdateList(ctx, &staleList))
	staleItem.Done = true
	require.NoError(t, store.UpdateItem(ctx, &staleItem))

	gotList, err := store.GetList(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, "Errands", gotList.Name)
	assert.Equal(t, "ext-1", gotList.ExternalID)

	gotItem, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, gotItem.Done)
	assert.Equal(t, "item-1", gotItem.ExternalID)
}

func TestPatchItem(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	list := &schema.List{Name: "Groceries"}
	require.NoError(t, store.CreateList(ctx, list))
	item := &schema.Item{ListID: list.ID, Description: "Buy milk", ExternalID: "item-1"}
	require.NoError(t, store.CreateItem(ctx, item))

	done := true
	got, err := store.PatchItem(ctx, item.ID, schema.ItemPatch{Done: &done})
	require.NoError(t, err)
	assert.Equal(t, schema.Item{ID: item.ID, ListID: list.ID, Description: "Buy milk", Done: true, ExternalID: "item-1"}, got)

	desc := "Buy oat milk"
	got, err = store.PatchItem(ctx, item.ID, schema.ItemPatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", got.Description)
	assert.True(t, got.Done)

	stored, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	_, err = store.PatchItem(ctx, 999, schema.ItemPatch{Done: &done})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.SetItemExternalID(ctx, 999, "item-2"), ErrNotFound)
}

func TestCreateItem_RequiresExistingList(t *testing.T) {
	store := setupTestDB(t)

	err := store.CreateItem(context.Background(), &schema.Item{ListID: 999, Description: "orphan"})
	require.Error(t, err)
}

func TestDeleteList_CascadesItems(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	list := &schema.List{Name: "Groceries"}
	require.NoError(t, store.CreateList(ctx, list))
	item := &schema.Item{ListID: list.ID, Description: "Buy milk"}
	require.NoError(t, store.CreateItem(ctx, item))

	require.NoError(t, store.DeleteList(ctx, list.ID))

	_, err := store.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExternalIDUnique(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	require.NoError(t, store.CreateList(ctx, &schema.List{Name: "A", ExternalID: "ext-1"}))
	require.Error(t, store.CreateList(ctx, &schema.List{Name: "B", ExternalID: "ext-1"}))

	// Unlinked rows never collide.
	require.NoError(t, store.CreateList(ctx, &schema.List{Name: "C"}))
	require.NoError(t, store.CreateList(ctx, &schema.List{Name: "D"}))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	linked := &schema.List{Name: "Linked", ExternalID: "ext-1"}
	require.NoError(t, store.CreateList(ctx, linked))
	require.NoError(t, store.CreateList(ctx, &schema.List{Name: "Local"}))

	require.NoError(t, store.CreateItem(ctx, &schema.Item{ListID: linked.ID, Description: "a", ExternalID: "i-1", Done: true}))
	require.NoError(t, store.CreateItem(ctx, &schema.Item{ListID: linked.ID, Description: "b"}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Lists: 2, LinkedLists: 1, Items: 2, LinkedItems: 1, DoneItems: 1}, stats)
}
