// Package sync pulls the external system's state into the local store.
//
// A cycle fetches a full snapshot and converges the local store on it. The
// external system is the authority for list names, item fields and item
// existence; local entities that were never linked are left alone.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/external"
	"github.com/mschirtzinger/todosync/internal/metrics"
	"github.com/mschirtzinger/todosync/internal/schema"
)

// ErrCycleInProgress is returned by Reconcile when another cycle is running.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// SnapshotFetcher retrieves the external state. *external.Client implements it.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) ([]external.List, error)
}

// Publisher receives converged item state. *notify.Notifier implements it.
type Publisher interface {
	Publish(listID int64, item schema.Item)
	PublishDeleted(listID int64, item schema.Item)
}

// Result summarizes one cycle.
type Result struct {
	ListsCreated int           `json:"lists_created"`
	ListsRenamed int           `json:"lists_renamed"`
	ItemsCreated int           `json:"items_created"`
	ItemsUpdated int           `json:"items_updated"`
	ItemsDeleted int           `json:"items_deleted"`
	ListFailures int           `json:"list_failures"`
	ItemFailures int           `json:"item_failures"`
	Skipped      bool          `json:"skipped"`
	Duration     time.Duration `json:"duration"`
}

// Changes returns the number of local writes the cycle made.
func (r Result) Changes() int {
	return r.ListsCreated + r.ListsRenamed + r.ItemsCreated + r.ItemsUpdated + r.ItemsDeleted
}

// Reconciler runs pull cycles. At most one cycle runs at a time.
type Reconciler struct {
	fetcher   SnapshotFetcher
	store     db.Store
	publisher Publisher
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics

	running atomic.Bool
}

// NewReconciler creates a Reconciler. logger and m may be nil.
func NewReconciler(fetcher SnapshotFetcher, store db.Store, publisher Publisher, logger *zap.SugaredLogger, m *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "sync"),
		metrics:   m,
	}
}

// RunCycle runs one cycle and logs its outcome. Errors never escape.
func (r *Reconciler) RunCycle(ctx context.Context) {
	res, err := r.Reconcile(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		r.logger.Infof("Skipping sync tick: previous cycle still running")
	case err != nil:
		r.logger.Errorf("Sync cycle aborted: %v", err)
	case res.ListFailures > 0 || res.ItemFailures > 0:
		r.logger.Warnf("Sync cycle finished with %d failed lists and %d failed items in %s: %d changes",
			res.ListFailures, res.ItemFailures, res.Duration, res.Changes())
	case res.Changes() > 0:
		r.logger.Infof("Sync cycle applied %d changes in %s (lists +%d ~%d, items +%d ~%d -%d)",
			res.Changes(), res.Duration,
			res.ListsCreated, res.ListsRenamed,
			res.ItemsCreated, res.ItemsUpdated, res.ItemsDeleted)
	default:
		r.logger.Debugf("Sync cycle found no changes in %s", res.Duration)
	}
}

// Reconcile runs one cycle and reports what it did.
//
// A fetch failure abandons the cycle before any write. A store failure
// while resolving one list abandons that list only, and a failure writing
// one item skips that item only; writes already made are kept. Returns ErrCycleInProgress without doing anything if another
// cycle is running.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.metrics.RecordCycle(metrics.ResultSkipped, 0)
		return Result{Skipped: true}, ErrCycleInProgress
	}
	defer r.running.Store(false)

	start := time.Now()
	r.logger.Debugf("Starting synchronization")

	lists, err := r.fetcher.FetchSnapshot(ctx)
	if err != nil {
		r.metrics.RecordCycle(metrics.ResultFailed, time.Since(start))
		return Result{}, fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	var res Result
	for _, ext := range lists {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			r.record(res, metrics.ResultFailed)
			return res, fmt.Errorf("sync cycle interrupted: %w", err)
		}
		if err := r.reconcileList(ctx, ext, &res); err != nil {
			res.ListFailures++
			r.logger.Warnf("Failed to sync external list %s: %v", ext.ID, err)
		}
	}

	res.Duration = time.Since(start)
	r.record(res, metrics.ResultOK)
	return res, nil
}

func (r *Reconciler) record(res Result, result string) {
	r.metrics.RecordCycle(result, res.Duration)
	r.metrics.AddChanges(metrics.ChangeListCreated, res.ListsCreated)
	r.metrics.AddChanges(metrics.ChangeListRenamed, res.ListsRenamed)
	r.metrics.AddChanges(metrics.ChangeItemCreated, res.ItemsCreated)
	r.metrics.AddChanges(metrics.ChangeItemUpdated, res.ItemsUpdated)
	r.metrics.AddChanges(metrics.ChangeItemDeleted, res.ItemsDeleted)
}

// reconcileList makes sure a local list joins ext and carries its name,
// then reconciles its items.
func (r *Reconciler) reconcileList(ctx context.Context, ext external.List, res *Result) error {
	local, err := r.store.GetListByExternalID(ctx, ext.ID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		local = schema.List{Name: ext.Name, ExternalID: ext.ID}
		if err := r.store.CreateList(ctx, &local); err != nil {
			return fmt.Errorf("failed to create local list: %w", err)
		}
		res.ListsCreated++
		r.logger.Infof("Created local list %d from external %s: %q", local.ID, ext.ID, local.Name)
	case err != nil:
		return fmt.Errorf("failed to look up local list: %w", err)
	case local.Name != ext.Name:
		local.Name = ext.Name
		if err := r.store.UpdateList(ctx, &local); err != nil {
			return fmt.Errorf("failed to rename local list %d: %w", local.ID, err)
		}
		res.ListsRenamed++
		r.logger.Infof("Renamed local list %d to %q", local.ID, local.Name)
	}

	return r.reconcileItems(ctx, local, ext.Items, res)
}

// reconcileItems converges the items of one list on the external ones.
// Items without an external ID are never touched. An item that cannot be
// written is logged and counted, and the rest of the list still converges.
func (r *Reconciler) reconcileItems(ctx context.Context, list schema.List, extItems []external.Item, res *Result) error {
	localItems, err := r.store.ListItems(ctx, list.ID)
	if err != nil {
		return fmt.Errorf("failed to load items of list %d: %w", list.ID, err)
	}

	byExternalID := make(map[string]schema.Item, len(localItems))
	for _, item := range localItems {
		if item.Linked() {
			byExternalID[item.ExternalID] = item
		}
	}

	seen := make(map[string]struct{}, len(extItems))
	for _, ext := range extItems {
		seen[ext.ID] = struct{}{}

		local, ok := byExternalID[ext.ID]
		if !ok {
			item := schema.Item{
				ListID:      list.ID,
				Description: ext.Description,
				Done:        ext.Done,
				ExternalID:  ext.ID,
			}
			if err := r.store.CreateItem(ctx, &item); err != nil {
				res.ItemFailures++
				r.logger.Warnf("Failed to create local item for external %s in list %d: %v", ext.ID, list.ID, err)
				continue
			}
			byExternalID[ext.ID] = item
			res.ItemsCreated++
			r.publisher.Publish(list.ID, item)
			continue
		}

		if local.Description == ext.Description && local.Done == ext.Done {
			continue
		}
		local.Description = ext.Description
		local.Done = ext.Done
		if err := r.store.UpdateItem(ctx, &local); err != nil {
			res.ItemFailures++
			r.logger.Warnf("Failed to update local item %d from external %s: %v", local.ID, ext.ID, err)
			continue
		}
		byExternalID[ext.ID] = local
		res.ItemsUpdated++
		r.publisher.Publish(list.ID, local)
	}

	for _, local := range localItems {
		if !local.Linked() {
			continue
		}
		if _, ok := seen[local.ExternalID]; ok {
			continue
		}
		if err := r.store.DeleteItem(ctx, local.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
			res.ItemFailures++
			r.logger.Warnf("Failed to delete local item %d removed externally (%s): %v", local.ID, local.ExternalID, err)
			continue
		}
		res.ItemsDeleted++
		r.logger.Infof("Deleted local item %d: removed externally (%s)", local.ID, local.ExternalID)
		r.publisher.PublishDeleted(list.ID, local)
	}

	return nil
}
