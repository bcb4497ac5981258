package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/schema"
)

// ErrNotLinked is returned when a push is skipped because the entity, or
// the list owning it, has no external ID yet.
var ErrNotLinked = errors.New("not linked to external system")

// Adapter pushes local mutations to the external system.
//
// Calls are best-effort: an error leaves local state as it is and nothing
// retries. Create operations write the returned external ID back to the
// store so the next pull cycle joins on it.
type Adapter struct {
	api   API
	store db.Store
}

// NewAdapter creates an Adapter.
func NewAdapter(api API, store db.Store) *Adapter {
	return &Adapter{api: api, store: store}
}

// CreateExternalList creates the list externally and links it locally.
// On success list.ExternalID is set.
func (a *Adapter) CreateExternalList(ctx context.Context, list *schema.List) error {
	extID, err := a.api.CreateList(ctx, list.Name)
	if err != nil {
		return err
	}

	if err := a.store.SetListExternalID(ctx, list.ID, extID); err != nil {
		return fmt.Errorf("failed to link list %d to %s: %w", list.ID, extID, err)
	}

	list.ExternalID = extID
	return nil
}

// UpdateExternalList pushes the list name. Unlinked lists are skipped.
func (a *Adapter) UpdateExternalList(ctx context.Context, list schema.List) error {
	if !list.Linked() {
		return fmt.Errorf("list %d: %w", list.ID, ErrNotLinked)
	}
	return a.api.UpdateList(ctx, list.ExternalID, list.Name)
}

// DeleteExternalList deletes the list externally. The list may already be
// gone locally; only the snapshot passed in is used.
func (a *Adapter) DeleteExternalList(ctx context.Context, list schema.List) error {
	if !list.Linked() {
		return fmt.Errorf("list %d: %w", list.ID, ErrNotLinked)
	}
	return a.api.DeleteList(ctx, list.ExternalID)
}

// CreateExternalItem creates the item in the owning external list and links
// it locally. On success item.ExternalID is set.
func (a *Adapter) CreateExternalItem(ctx context.Context, item *schema.Item) error {
	list, err := a.owningList(ctx, item.ListID)
	if err != nil {
		return err
	}

	extID, err := a.api.CreateItem(ctx, list.ExternalID, item.Description, item.Done)
	if err != nil {
		return err
	}

	if err := a.store.SetItemExternalID(ctx, item.ID, extID); err != nil {
		return fmt.Errorf("failed to link item %d to %s: %w", item.ID, extID, err)
	}

	item.ExternalID = extID
	return nil
}

// UpdateExternalItem pushes the item's description and completion.
// Requires both the item and its list to be linked.
func (a *Adapter) UpdateExternalItem(ctx context.Context, item schema.Item) error {
	if !item.Linked() {
		return fmt.Errorf("item %d: %w", item.ID, ErrNotLinked)
	}
	list, err := a.owningList(ctx, item.ListID)
	if err != nil {
		return err
	}

	patch := schema.ItemPatch{Description: &item.Description, Done: &item.Done}
	return a.api.UpdateItem(ctx, list.ExternalID, item.ExternalID, patch)
}

// DeleteExternalItem deletes the item externally. The item may already be
// gone locally; its owning list must still resolve.
func (a *Adapter) DeleteExternalItem(ctx context.Context, item schema.Item) error {
	if !item.Linked() {
		return fmt.Errorf("item %d: %w", item.ID, ErrNotLinked)
	}
	list, err := a.owningList(ctx, item.ListID)
	if err != nil {
		return err
	}
	return a.api.DeleteItem(ctx, list.ExternalID, item.ExternalID)
}

// owningList resolves a linked list. A missing or unlinked list is ErrNotLinked.
func (a *Adapter) owningList(ctx context.Context, listID int64) (schema.List, error) {
	list, err := a.store.GetList(ctx, listID)
	if errors.Is(err, db.ErrNotFound) {
		return schema.List{}, fmt.Errorf("list %d: %w", listID, ErrNotLinked)
	}
	if err != nil {
		return schema.List{}, fmt.Errorf("failed to load list %d: %w", listID, err)
	}
	if !list.Linked() {
		return schema.List{}, fmt.Errorf("list %d: %w", listID, ErrNotLinked)
	}
	return list, nil
}
