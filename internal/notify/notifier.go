// Package notify fans out item changes to per-list subscribers.
//
// Delivery is broadcast-only and at-most-once: nothing is buffered or
// replayed, and a subscriber that joins after an event never sees it.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mschirtzinger/todosync/internal/metrics"
	"github.com/mschirtzinger/todosync/internal/schema"
)

// EventType distinguishes item events.
type EventType string

const (
	ItemUpdated EventType = "item_updated"
	ItemDeleted EventType = "item_deleted"
)

// Event is delivered to every subscriber of a list.
type Event struct {
	Type      EventType   `json:"type"`
	ListID    int64       `json:"listId"`
	Item      schema.Item `json:"item"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscriber receives events. ID must be stable for the subscriber's lifetime.
type Subscriber interface {
	ID() string
	Send(Event) error
}

// Handle identifies one subscription.
type Handle struct {
	ListID       int64
	SubscriberID string
}

// Notifier is a topic registry keyed by list ID.
type Notifier struct {
	mu     sync.RWMutex
	topics map[int64]map[string]Subscriber

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Notifier. logger and m may be nil.
func New(logger *zap.SugaredLogger, m *metrics.Metrics) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Notifier{
		topics:  make(map[int64]map[string]Subscriber),
		logger:  logger.With("component", "notify"),
		metrics: m,
		now:     time.Now,
	}
}

// Subscribe adds sub to the topic of listID. Joining twice is a no-op.
func (n *Notifier) Subscribe(listID int64, sub Subscriber) Handle {
	h := Handle{ListID: listID, SubscriberID: sub.ID()}

	n.mu.Lock()
	defer n.mu.Unlock()

	subs, ok := n.topics[listID]
	if !ok {
		subs = make(map[string]Subscriber)
		n.topics[listID] = subs
	}
	if _, exists := subs[h.SubscriberID]; !exists {
		subs[h.SubscriberID] = sub
		n.metrics.AddSubscribers(1)
	}
	return h
}

// Unsubscribe removes a subscription. Leaving twice is a no-op.
func (n *Notifier) Unsubscribe(h Handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removeLocked(h.ListID, h.SubscriberID)
}

// UnsubscribeAll removes sub from every topic, typically on disconnect.
func (n *Notifier) UnsubscribeAll(sub Subscriber) {
	id := sub.ID()

	n.mu.Lock()
	defer n.mu.Unlock()
	for listID := range n.topics {
		n.removeLocked(listID, id)
	}
}

func (n *Notifier) removeLocked(listID int64, subID string) {
	subs, ok := n.topics[listID]
	if !ok {
		return
	}
	if _, exists := subs[subID]; !exists {
		return
	}
	delete(subs, subID)
	n.metrics.AddSubscribers(-1)
	if len(subs) == 0 {
		delete(n.topics, listID)
	}
}

// Subscribers returns the number of subscribers of a list.
func (n *Notifier) Subscribers(listID int64) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.topics[listID])
}

// Publish broadcasts the item's current state to the list's subscribers.
func (n *Notifier) Publish(listID int64, item schema.Item) {
	n.broadcast(Event{Type: ItemUpdated, ListID: listID, Item: item, Timestamp: n.now()})
}

// PublishDeleted broadcasts the removal of an item.
func (n *Notifier) PublishDeleted(listID int64, item schema.Item) {
	n.broadcast(Event{Type: ItemDeleted, ListID: listID, Item: item, Timestamp: n.now()})
}

// broadcast snapshots the topic under the read lock and sends outside it.
// Subscribers whose Send fails are removed.
func (n *Notifier) broadcast(ev Event) {
	n.mu.RLock()
	subs := make([]Subscriber, 0, len(n.topics[ev.ListID]))
	for _, sub := range n.topics[ev.ListID] {
		subs = append(subs, sub)
	}
	n.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(ev); err != nil {
			n.logger.Warnf("Dropping subscriber %s from list %d: %v", sub.ID(), ev.ListID, err)
			n.Unsubscribe(Handle{ListID: ev.ListID, SubscriberID: sub.ID()})
		}
	}
}
