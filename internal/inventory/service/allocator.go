package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentora/rentora-backend/internal/inventory/locking"
	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/actor"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// AllocationResult is a committed allocation with the units it claimed
type AllocationResult struct {
	Allocation *repository.Allocation `json:"allocation"`
	Units      []repository.Unit      `json:"units"`
}

// ReleaseResult reports what a release changed
type ReleaseResult struct {
	Released      []string `json:"released"`
	Unchanged     []string `json:"unchanged"`
	AllocationIDs []string `json:"allocation_ids"`
	ItemIDs       []string `json:"item_ids"`
}

func (r *ReleaseResult) merge(o *ReleaseResult) {
	r.Released = append(r.Released, o.Released...)
	r.Unchanged = append(r.Unchanged, o.Unchanged...)
	r.AllocationIDs = append(r.AllocationIDs, o.AllocationIDs...)
	r.ItemIDs = locking.SortedUnique(append(r.ItemIDs, o.ItemIDs...))
}

func newReleaseResult() *ReleaseResult {
	return &ReleaseResult{Released: []string{}, Unchanged: []string{}, AllocationIDs: []string{}, ItemIDs: []string{}}
}

// Allocator reserves in-stock units for consumers and releases them
type Allocator struct {
	*Engine
}

// NewAllocator creates an Allocator
func NewAllocator(e *Engine) *Allocator {
	return &Allocator{Engine: e}
}

func validateConsumer(ref repository.ConsumerRef) error {
	if !ref.Type.Valid() {
		return errors.FieldValidation("consumer.type", "must be one of: rental, sale, service")
	}
	if strings.TrimSpace(ref.Ref) == "" {
		return errors.FieldValidation("consumer.ref", "is required")
	}
	return nil
}

// Allocate moves quantity in-stock units of the item to rented and records
// them against consumer. Units are taken in ascending id order. Either every
// requested unit is claimed or nothing changes and InsufficientStock is
// returned.
func (s *Allocator) Allocate(ctx context.Context, itemID string, quantity int, consumer repository.ConsumerRef) (*AllocationResult, error) {
	if quantity <= 0 {
		return nil, errors.FieldValidation("quantity", "must be greater than 0")
	}
	if err := validateConsumer(consumer); err != nil {
		return nil, err
	}

	by := actor.FromContext(ctx).Ref()
	result := &AllocationResult{}
	err := s.mutateItem(ctx, itemID, func(ctx context.Context) error {
		available, err := s.units.CountAvailable(ctx, itemID)
		if err != nil {
			return err
		}
		if quantity > available {
			return errors.InsufficientStock(quantity, available)
		}

		ids, err := s.units.InStockIDs(ctx, itemID, quantity)
		if err != nil {
			return err
		}
		claimed, err := s.units.TransitionMany(ctx, ids, repository.UnitInStock, repository.UnitRented)
		if err != nil {
			return err
		}
		if int(claimed) != quantity {
			return errors.InsufficientStock(quantity, int(claimed))
		}

		a := &repository.Allocation{
			ItemID:       itemID,
			ConsumerType: consumer.Type,
			ConsumerRef:  consumer.Ref,
			AllocatedBy:  by,
		}
		if err := s.allocations.Create(ctx, a, ids); err != nil {
			return err
		}
		result.Allocation = a
		result.Units, err = s.units.ListByIDs(ctx, ids)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("item_id", itemID).
			Int("quantity", quantity).
			Str("consumer_ref", consumer.String()).
			Msg("allocation failed")
		return nil, err
	}

	s.publisher.UnitsAllocated(ctx, result.Allocation)
	s.logger.Info().
		Str("item_id", itemID).
		Str("allocation_id", result.Allocation.ID).
		Int("quantity", quantity).
		Str("consumer_ref", consumer.String()).
		Msg("units allocated")
	return result, nil
}

// Release returns rented units to stock and closes their allocation links.
// Units already in stock are left alone. Units in maintenance or retired fail
// the whole call, as does an unknown unit id.
func (s *Allocator) Release(ctx context.Context, unitIDs []string) (*ReleaseResult, error) {
	ids := locking.SortedUnique(unitIDs)
	if len(ids) == 0 {
		return nil, errors.FieldValidation("unit_ids", "must not be empty")
	}

	units, err := s.units.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(units) != len(ids) {
		return nil, errors.NotFoundWithKey("unit")
	}
	itemIDs := make([]string, 0, len(units))
	for _, u := range units {
		itemIDs = append(itemIDs, u.ItemID)
	}

	by := actor.FromContext(ctx).Ref()
	var result *ReleaseResult
	err = s.mutateItems(ctx, itemIDs, func(ctx context.Context) error {
		var err error
		result, err = s.releaseLocked(ctx, ids, by)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Int("units", len(ids)).Msg("release failed")
		return nil, err
	}

	s.reportRelease(ctx, result, by)
	return result, nil
}

// releaseLocked does the work of Release. The caller holds the locks of
// every item owning one of ids.
func (s *Allocator) releaseLocked(ctx context.Context, ids []string, by string) (*ReleaseResult, error) {
	units, err := s.units.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(units) != len(ids) {
		return nil, errors.NotFoundWithKey("unit")
	}

	result := newReleaseResult()
	var rented []string
	for _, u := range units {
		switch u.Status {
		case repository.UnitRented:
			rented = append(rented, u.ID)
		case repository.UnitInStock:
			result.Unchanged = append(result.Unchanged, u.ID)
		default:
			return nil, errors.PreconditionFailedWithKey("inventory.release_not_rented", map[string]string{
				"serial": u.SerialNumber,
				"status": string(u.Status),
			})
		}
		result.ItemIDs = append(result.ItemIDs, u.ItemID)
	}
	result.ItemIDs = locking.SortedUnique(result.ItemIDs)

	if len(rented) == 0 {
		return result, nil
	}
	n, err := s.units.TransitionMany(ctx, rented, repository.UnitRented, repository.UnitInStock)
	if err != nil {
		return nil, err
	}
	if int(n) != len(rented) {
		return nil, fmt.Errorf("release: moved %d of %d rented units", n, len(rented))
	}
	if result.AllocationIDs, err = s.allocations.ReleaseLinks(ctx, rented, by); err != nil {
		return nil, err
	}
	result.Released = rented
	return result, nil
}

func (s *Allocator) reportRelease(ctx context.Context, result *ReleaseResult, by string) {
	if len(result.Released) == 0 {
		return
	}
	s.publisher.UnitsReleased(ctx, result.ItemIDs, result.Released, result.AllocationIDs, by)
	s.logger.Info().
		Strs("item_ids", result.ItemIDs).
		Int("released", len(result.Released)).
		Int("unchanged", len(result.Unchanged)).
		Str("released_by", by).
		Msg("units released")
}

// maxConsumerPasses bounds ReleaseConsumer when the consumer keeps gaining
// allocations on other items while it runs.
const maxConsumerPasses = 3

// ReleaseConsumer releases every unit the consumer still holds. Calling it
// for a consumer without active allocations is a no-op.
func (s *Allocator) ReleaseConsumer(ctx context.Context, consumer repository.ConsumerRef) (*ReleaseResult, error) {
	if err := validateConsumer(consumer); err != nil {
		return nil, err
	}

	by := actor.FromContext(ctx).Ref()
	total := newReleaseResult()
	for pass := 0; pass < maxConsumerPasses; pass++ {
		held, err := s.allocations.ActiveUnitIDs(ctx, consumer)
		if err != nil {
			return nil, err
		}
		if len(held) == 0 {
			break
		}
		itemIDs := make([]string, 0, len(held))
		for id := range held {
			itemIDs = append(itemIDs, id)
		}

		var result *ReleaseResult
		err = s.mutateItems(ctx, itemIDs, func(ctx context.Context) error {
			// re-read under the locks; only units of locked items are touched
			current, err := s.allocations.ActiveUnitIDs(ctx, consumer)
			if err != nil {
				return err
			}
			var ids []string
			for _, itemID := range itemIDs {
				ids = append(ids, current[itemID]...)
			}
			if len(ids) == 0 {
				result = newReleaseResult()
				return nil
			}
			result, err = s.releaseLocked(ctx, locking.SortedUnique(ids), by)
			return err
		})
		if errors.Is(err, errors.ErrNotFound) {
			// an item was deleted between the read and the lock
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("consumer_ref", consumer.String()).Msg("consumer release failed")
			return nil, err
		}
		total.merge(result)
	}

	s.reportRelease(ctx, total, by)
	s.logger.Info().Str("consumer_ref", consumer.String()).Int("released", len(total.Released)).Msg("consumer released")
	return total, nil
}

// ListAllocations lists a consumer's allocations, newest first
func (s *Allocator) ListAllocations(ctx context.Context, consumer repository.ConsumerRef, activeOnly bool) ([]repository.Allocation, error) {
	if err := validateConsumer(consumer); err != nil {
		return nil, err
	}
	var list []repository.Allocation
	err := s.read(ctx, func() error {
		var err error
		list, err = s.allocations.ListByConsumer(ctx, consumer, activeOnly)
		return err
	})
	return list, err
}

// GetAllocation returns an allocation with its unit links
func (s *Allocator) GetAllocation(ctx context.Context, id string) (*repository.Allocation, error) {
	var a *repository.Allocation
	err := s.read(ctx, func() error {
		var err error
		a, err = s.allocations.GetByID(ctx, id)
		return err
	})
	return a, err
}
