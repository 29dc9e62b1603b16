package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rentora/rentora-backend/pkg/errors"
)

// ReconcileResult describes what a quantity change did to the unit population
type ReconcileResult struct {
	ItemID   string   `json:"item_id"`
	Previous int      `json:"previous"`
	Target   int      `json:"target"`
	Created  []string `json:"created"`
	Removed  []string `json:"removed"`
}

// Changed reports whether any unit was created or removed
func (r *ReconcileResult) Changed() bool {
	return len(r.Created) > 0 || len(r.Removed) > 0
}

// Reconciler aligns an item's unit population with its declared quantity
type Reconciler struct {
	*Engine
}

// NewReconciler creates a Reconciler
func NewReconciler(e *Engine) *Reconciler {
	return &Reconciler{Engine: e}
}

// Reconcile grows or shrinks the item's non-retired units to target.
// Growth creates in-stock units at the item's location. Shrinking deletes
// in-stock units, newest first, and fails with PreconditionFailed without
// touching anything when more than target units are rented or in maintenance.
func (r *Reconciler) Reconcile(ctx context.Context, itemID string, target int) (*ReconcileResult, error) {
	if target < 0 {
		return nil, errors.FieldValidation("quantity", "must not be negative")
	}

	var res *ReconcileResult
	err := r.mutateItem(ctx, itemID, func(ctx context.Context) error {
		var err error
		res, err = r.reconcileLocked(ctx, itemID, target)
		return err
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("item_id", itemID).Int("target", target).Msg("reconcile failed")
		return nil, err
	}

	if res.Changed() {
		r.publisher.ItemReconciled(ctx, itemID, res.Previous, res.Target, res.Created, res.Removed)
	}
	r.logger.Info().
		Str("item_id", itemID).
		Int("previous", res.Previous).
		Int("target", res.Target).
		Int("created", len(res.Created)).
		Int("removed", len(res.Removed)).
		Msg("item reconciled")
	return res, nil
}

// reconcileLocked does the work of Reconcile. The caller holds the item lock
// and refreshes the counters afterwards.
func (r *Reconciler) reconcileLocked(ctx context.Context, itemID string, target int) (*ReconcileResult, error) {
	item, err := r.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	counts, err := r.units.CountByStatus(ctx, itemID)
	if err != nil {
		return nil, err
	}

	current := counts.Active()
	res := &ReconcileResult{ItemID: itemID, Previous: current, Target: target, Created: []string{}, Removed: []string{}}

	switch {
	case target > current:
		units, err := r.insertNewUnits(ctx, item, current+1, target-current)
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			res.Created = append(res.Created, u.ID)
		}

	case target < current:
		if held := counts.Held(); held > target {
			return nil, errors.PreconditionFailedWithKey("inventory.shrink_below_allocated", map[string]string{
				"held":   strconv.Itoa(held),
				"target": strconv.Itoa(target),
			})
		}
		remove := current - target
		ids, err := r.units.NewestInStockIDs(ctx, itemID, remove)
		if err != nil {
			return nil, err
		}
		n, err := r.units.DeleteInStock(ctx, ids)
		if err != nil {
			return nil, err
		}
		if int(n) != remove {
			// cannot happen while the item lock is held
			return nil, fmt.Errorf("reconcile %s: removed %d of %d units", itemID, n, remove)
		}
		res.Removed = ids
	}

	return res, nil
}
