// Package todo is the request-facing composition of the store, the queue,
// the notifier and the push path.
//
// List and item creation, renames and deletions are applied synchronously
// and then pushed outward in the background. Item field updates go through
// the command queue and are applied later by a worker.
package todo

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/queue"
	"github.com/mschirtzinger/todosync/internal/schema"
)

// Pusher propagates local mutations outward without blocking.
// *push.Dispatcher implements it.
type Pusher interface {
	CreateList(list schema.List)
	UpdateList(list schema.List)
	DeleteList(list schema.List)
	CreateItem(item schema.Item)
	DeleteItem(item schema.Item)
}

// Publisher broadcasts item changes. *notify.Notifier implements it.
type Publisher interface {
	Publish(listID int64, item schema.Item)
	PublishDeleted(listID int64, item schema.Item)
}

// Service implements the todo operations used by the HTTP layer.
type Service struct {
	store     db.Store
	queue     *queue.Queue
	publisher Publisher
	pusher    Pusher
	logger    *zap.SugaredLogger
}

// New creates a Service. logger may be nil.
func New(store db.Store, q *queue.Queue, publisher Publisher, pusher Pusher, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:     store,
		queue:     q,
		publisher: publisher,
		pusher:    pusher,
		logger:    logger.With("component", "todo"),
	}
}

// Lists returns all lists without items.
func (s *Service) Lists(ctx context.Context) ([]schema.List, error) {
	lists, err := s.store.ListLists(ctx)
	if err != nil {
		return nil, err
	}
	if lists == nil {
		lists = []schema.List{}
	}
	return lists, nil
}

// GetList returns a list with its items.
func (s *Service) GetList(ctx context.Context, id int64) (schema.List, error) {
	list, err := s.store.GetList(ctx, id)
	if err != nil {
		return schema.List{}, err
	}
	items, err := s.store.ListItems(ctx, id)
	if err != nil {
		return schema.List{}, err
	}
	list.Items = items
	if list.Items == nil {
		list.Items = []schema.Item{}
	}
	return list, nil
}

// CreateList stores a new list and creates it externally in the background.
func (s *Service) CreateList(ctx context.Context, name string) (schema.List, error) {
	list := schema.List{Name: name}
	if err := s.store.CreateList(ctx, &list); err != nil {
		return schema.List{}, err
	}
	s.logger.Infof("Created list %d %q", list.ID, list.Name)
	s.pusher.CreateList(list)
	return list, nil
}

// UpdateList applies patch to a list and pushes the new name.
func (s *Service) UpdateList(ctx context.Context, id int64, patch schema.ListPatch) (schema.List, error) {
	list, err := s.store.GetList(ctx, id)
	if err != nil {
		return schema.List{}, err
	}
	if patch.IsEmpty() {
		return list, nil
	}

	list = patch.Apply(list)
	if err := s.store.UpdateList(ctx, &list); err != nil {
		return schema.List{}, err
	}
	// Re-read so a link made since GetList is carried outward.
	if list, err = s.store.GetList(ctx, id); err != nil {
		return schema.List{}, err
	}
	s.pusher.UpdateList(list)
	return list, nil
}

// DeleteList deletes a list with its items and deletes it externally.
func (s *Service) DeleteList(ctx context.Context, id int64) error {
	list, err := s.store.GetList(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteList(ctx, id); err != nil {
		return err
	}
	s.logger.Infof("Deleted list %d", id)
	s.pusher.DeleteList(list)
	return nil
}

// Items returns the items of a list.
func (s *Service) Items(ctx context.Context, listID int64) ([]schema.Item, error) {
	if _, err := s.store.GetList(ctx, listID); err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, listID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []schema.Item{}
	}
	return items, nil
}

// CreateItem stores a new item, notifies subscribers and creates it externally.
func (s *Service) CreateItem(ctx context.Context, listID int64, description string, done bool) (schema.Item, error) {
	if _, err := s.store.GetList(ctx, listID); err != nil {
		return schema.Item{}, err
	}

	item := schema.Item{ListID: listID, Description: description, Done: done}
	if err := s.store.CreateItem(ctx, &item); err != nil {
		return schema.Item{}, err
	}
	s.publisher.Publish(listID, item)
	s.pusher.CreateItem(item)
	return item, nil
}

// GetItem returns an item of a list.
func (s *Service) GetItem(ctx context.Context, listID, itemID int64) (schema.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return schema.Item{}, err
	}
	if item.ListID != listID {
		return schema.Item{}, fmt.Errorf("item %d in list %d: %w", itemID, listID, db.ErrNotFound)
	}
	return item, nil
}

// EnqueueItemUpdate queues a partial update and returns the item as it is
// before the update. The update is applied asynchronously; callers do not
// learn whether it succeeded.
func (s *Service) EnqueueItemUpdate(ctx context.Context, listID, itemID int64, patch schema.ItemPatch) (schema.Item, error) {
	item, err := s.GetItem(ctx, listID, itemID)
	if err != nil {
		return schema.Item{}, err
	}

	cmd := queue.NewCommand(itemID, patch)
	if err := s.queue.Enqueue(cmd); err != nil {
		return schema.Item{}, fmt.Errorf("failed to enqueue update for item %d: %w", itemID, err)
	}
	s.logger.Debugf("Enqueued command %s %s for item %d", cmd.ID, patch, itemID)
	return item, nil
}

// DeleteItem deletes an item, notifies subscribers and deletes it externally.
func (s *Service) DeleteItem(ctx context.Context, listID, itemID int64) error {
	item, err := s.GetItem(ctx, listID, itemID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.publisher.PublishDeleted(listID, item)
	s.pusher.DeleteItem(item)
	return nil
}
