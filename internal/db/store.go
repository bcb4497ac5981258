package db

import (
	"context"
	"errors"

	"github.com/mschirtzinger/todosync/internal/schema"
)

// ErrNotFound is returned when a list or item does not exist.
var ErrNotFound = errors.New("not found")

// Store is CRUD access to lists and items keyed by local identity.
//
// It is shared by the reconciler, the queue worker, the push adapter and the
// request layer. Each call is a single statement and writes only the columns
// it names, so concurrent writers of different fields never undo each other;
// for the same field the last writer wins.
type Store interface {
	// ListLists returns all lists without their items, ordered by ID.
	ListLists(ctx context.Context) ([]schema.List, error)

	// GetList returns a list without its items.
	// Returns ErrNotFound if the list does not exist.
	GetList(ctx context.Context, id int64) (schema.List, error)

	// GetListByExternalID returns the list linked to the given external ID.
	// Returns ErrNotFound if no list carries it.
	GetListByExternalID(ctx context.Context, externalID string) (schema.List, error)

	// CreateList inserts a list and sets list.ID.
	CreateList(ctx context.Context, list *schema.List) error

	// UpdateList persists the name of an existing list. The external ID is
	// left alone.
	UpdateList(ctx context.Context, list *schema.List) error

	// SetListExternalID links an existing list to an external ID.
	SetListExternalID(ctx context.Context, id int64, externalID string) error

	// DeleteList removes a list and, by cascade, its items.
	DeleteList(ctx context.Context, id int64) error

	// ListItems returns the items owned by a list, ordered by ID.
	ListItems(ctx context.Context, listID int64) ([]schema.Item, error)

	// GetItem returns a single item.
	// Returns ErrNotFound if the item does not exist.
	GetItem(ctx context.Context, id int64) (schema.Item, error)

	// CreateItem inserts an item and sets item.ID.
	// The owning list must exist.
	CreateItem(ctx context.Context, item *schema.Item) error

	// UpdateItem persists the description and completion flag of an
	// existing item. The external ID and owning list are left alone.
	UpdateItem(ctx context.Context, item *schema.Item) error

	// PatchItem writes only the fields set in patch and returns the item as
	// stored afterwards. Returns ErrNotFound if the item does not exist.
	PatchItem(ctx context.Context, id int64, patch schema.ItemPatch) (schema.Item, error)

	// SetItemExternalID links an existing item to an external ID.
	SetItemExternalID(ctx context.Context, id int64, externalID string) error

	// DeleteItem removes a single item.
	DeleteItem(ctx context.Context, id int64) error
}

// Stats summarizes the store contents.
type Stats struct {
	Lists       int `json:"lists"`
	LinkedLists int `json:"linked_lists"`
	Items       int `json:"items"`
	LinkedItems int `json:"linked_items"`
	DoneItems   int `json:"done_items"`
}
