package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// CreateItemInput is the input for CreateItem
type CreateItemInput struct {
	CategoryID      string `json:"category_id" validate:"required,uuid"`
	Name            string `json:"name" validate:"required,notblank,max=200"`
	Model           string `json:"model" validate:"max=200"`
	Location        string `json:"location" validate:"max=200"`
	InitialQuantity int    `json:"initial_quantity" validate:"gt=0,lte=10000"`
}

// UpdateItemInput is the input for UpdateItem
type UpdateItemInput struct {
	Name     string `json:"name" validate:"required,notblank,max=200"`
	Model    string `json:"model" validate:"max=200"`
	Location string `json:"location" validate:"max=200"`
}

// ItemDetail is an item with its live unit counts
type ItemDetail struct {
	*repository.Item
	Counts    repository.StatusCounts `json:"counts"`
	Available int                     `json:"available"`
}

// DriftReport compares an item's cached counters with its live unit counts
type DriftReport struct {
	ItemID  string                  `json:"item_id"`
	Cached  repository.StatusCounts `json:"cached"`
	Live    repository.StatusCounts `json:"live"`
	Drifted bool                    `json:"drifted"`
}

// Ledger manages items and keeps their counters consistent with their units
type Ledger struct {
	*Engine
	reconciler *Reconciler
}

// NewLedger creates a Ledger
func NewLedger(e *Engine, reconciler *Reconciler) *Ledger {
	return &Ledger{Engine: e, reconciler: reconciler}
}

// CreateItem creates an item together with its initial in-stock units
func (s *Ledger) CreateItem(ctx context.Context, in CreateItemInput) (*ItemDetail, error) {
	switch {
	case strings.TrimSpace(in.CategoryID) == "":
		return nil, errors.FieldValidation("category_id", "is required")
	case strings.TrimSpace(in.Name) == "":
		return nil, errors.FieldValidation("name", "is required")
	case in.InitialQuantity <= 0:
		return nil, errors.FieldValidation("initial_quantity", "must be greater than 0")
	}

	item := &repository.Item{
		CategoryID: in.CategoryID,
		Name:       strings.TrimSpace(in.Name),
		Model:      strings.TrimSpace(in.Model),
		Location:   strings.TrimSpace(in.Location),
	}

	// A new item is invisible to other writers until commit, so only the
	// row locks are taken.
	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.categories.Lock(ctx, item.CategoryID); err != nil {
			return err
		}
		if err := s.items.Create(ctx, item); err != nil {
			return err
		}
		if err := s.items.Lock(ctx, item.ID); err != nil {
			return err
		}
		if _, err := s.reconciler.reconcileLocked(ctx, item.ID, in.InitialQuantity); err != nil {
			return err
		}
		return s.items.RefreshCounters(ctx, item.ID)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("category_id", in.CategoryID).Msg("create item failed")
		return nil, err
	}

	detail, err := s.GetItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	s.publisher.ItemCreated(ctx, detail.Item, in.InitialQuantity)
	s.logger.Info().
		Str("item_id", item.ID).
		Str("category_id", item.CategoryID).
		Int("quantity", in.InitialQuantity).
		Msg("item created")
	return detail, nil
}

// SetDeclaredQuantity reconciles the item to newQuantity and returns the result
func (s *Ledger) SetDeclaredQuantity(ctx context.Context, itemID string, newQuantity int) (*ItemDetail, error) {
	if _, err := s.reconciler.Reconcile(ctx, itemID, newQuantity); err != nil {
		return nil, err
	}
	return s.GetItem(ctx, itemID)
}

// DeleteItem deletes an item and all of its units. It is refused while any
// unit is rented.
func (s *Ledger) DeleteItem(ctx context.Context, itemID string) error {
	var (
		item   *repository.Item
		counts repository.StatusCounts
	)
	err := s.mutateItem(ctx, itemID, func(ctx context.Context) error {
		var err error
		if item, err = s.items.GetByID(ctx, itemID); err != nil {
			return err
		}
		if counts, err = s.units.CountByStatus(ctx, itemID); err != nil {
			return err
		}
		if counts.Rented > 0 {
			return errors.PreconditionFailedWithKey("inventory.units_rented", map[string]string{
				"count": strconv.Itoa(counts.Rented),
			})
		}
		return s.items.Delete(ctx, itemID)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", itemID).Msg("delete item failed")
		return err
	}

	s.publisher.ItemDeleted(ctx, item, counts.Total())
	s.logger.Info().Str("item_id", itemID).Int("units_removed", counts.Total()).Msg("item deleted")
	return nil
}

// AvailableQuantity counts the item's in-stock units live
func (s *Ledger) AvailableQuantity(ctx context.Context, itemID string) (int, error) {
	var n int
	err := s.read(ctx, func() error {
		if _, err := s.items.Version(ctx, itemID); err != nil {
			return err
		}
		var err error
		n, err = s.units.CountAvailable(ctx, itemID)
		return err
	})
	return n, err
}

// GetItem returns an item with live counts
func (s *Ledger) GetItem(ctx context.Context, itemID string) (*ItemDetail, error) {
	var detail *ItemDetail
	err := s.read(ctx, func() error {
		item, err := s.items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		counts, err := s.units.CountByStatus(ctx, itemID)
		if err != nil {
			return err
		}
		detail = &ItemDetail{Item: item, Counts: counts, Available: counts.InStock}
		return nil
	})
	return detail, err
}

// ListItems lists items with live counts
func (s *Ledger) ListItems(ctx context.Context, filter repository.ItemFilter) ([]ItemDetail, int64, error) {
	var (
		out   []ItemDetail
		total int64
	)
	err := s.read(ctx, func() error {
		items, n, err := s.items.List(ctx, filter)
		if err != nil {
			return err
		}
		ids := make([]string, len(items))
		for i := range items {
			ids[i] = items[i].ID
		}
		counts, err := s.units.CountByStatusForItems(ctx, ids)
		if err != nil {
			return err
		}

		out = make([]ItemDetail, len(items))
		for i := range items {
			c := counts[items[i].ID]
			out[i] = ItemDetail{Item: &items[i], Counts: c, Available: c.InStock}
		}
		total = n
		return nil
	})
	return out, total, err
}

// UpdateItem edits name, model and location. Existing units keep their location.
func (s *Ledger) UpdateItem(ctx context.Context, itemID string, in UpdateItemInput) (*ItemDetail, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.FieldValidation("name", "is required")
	}

	// Runs under the item lock so the version bump retires cached summaries
	// carrying the old name.
	err := s.mutateItem(ctx, itemID, func(ctx context.Context) error {
		item, err := s.items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		item.Name = strings.TrimSpace(in.Name)
		item.Model = strings.TrimSpace(in.Model)
		item.Location = strings.TrimSpace(in.Location)
		return s.items.Update(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return s.GetItem(ctx, itemID)
}

// Availability returns summaries for the given items, served from the cache
// when an entry for the item's current version exists. Unknown ids are
// skipped.
func (s *Ledger) Availability(ctx context.Context, itemIDs []string) ([]repository.ItemSummary, error) {
	var out []repository.ItemSummary
	err := s.read(ctx, func() error {
		items, err := s.items.GetMany(ctx, itemIDs)
		if err != nil {
			return err
		}

		out = make([]repository.ItemSummary, 0, len(items))
		var misses []string
		missed := make(map[string]*repository.Item)
		for i := range items {
			if cached, ok := s.cache.Get(ctx, items[i].ID, items[i].Version); ok {
				out = append(out, *cached)
				continue
			}
			misses = append(misses, items[i].ID)
			missed[items[i].ID] = &items[i]
		}
		if len(misses) == 0 {
			return nil
		}

		counts, err := s.units.CountByStatusForItems(ctx, misses)
		if err != nil {
			return err
		}
		for _, id := range misses {
			summary := repository.NewItemSummary(missed[id], counts[id])
			s.cache.Set(ctx, summary)
			out = append(out, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortSummaries(out)
	return out, nil
}

// ItemAvailability is Availability for one item; NotFound when it does not exist
func (s *Ledger) ItemAvailability(ctx context.Context, itemID string) (*repository.ItemSummary, error) {
	summaries, err := s.Availability(ctx, []string{itemID})
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, errors.NotFoundWithKey("item")
	}
	return &summaries[0], nil
}

func sortSummaries(s []repository.ItemSummary) {
	sort.Slice(s, func(i, j int) bool { return s[i].ItemID < s[j].ItemID })
}

func cachedCounts(item *repository.Item) repository.StatusCounts {
	return repository.StatusCounts{
		InStock:     item.QuantityInStock,
		Rented:      item.QuantityRentedOut,
		Maintenance: item.QuantityInMaintenance,
	}
}

func drifted(cached, live repository.StatusCounts) bool {
	return cached.InStock != live.InStock ||
		cached.Rented != live.Rented ||
		cached.Maintenance != live.Maintenance
}

// CheckConsistency compares the item's cached counters with its units and
// rewrites them when they drifted.
func (s *Ledger) CheckConsistency(ctx context.Context, itemID string) (*DriftReport, error) {
	report := &DriftReport{ItemID: itemID}
	err := s.read(ctx, func() error {
		item, err := s.items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		report.Cached = cachedCounts(item)
		report.Live, err = s.units.CountByStatus(ctx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !drifted(report.Cached, report.Live) {
		return report, nil
	}

	// Re-check under the lock; a writer may have committed in between.
	err = s.mutateItem(ctx, itemID, func(ctx context.Context) error {
		item, err := s.items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		report.Cached = cachedCounts(item)
		report.Live, err = s.units.CountByStatus(ctx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}

	report.Drifted = drifted(report.Cached, report.Live)
	if report.Drifted {
		s.publisher.LedgerDrift(ctx, itemID, report.Cached, report.Live)
		s.logger.Warn().
			Str("item_id", itemID).
			Interface("cached", report.Cached).
			Interface("live", report.Live).
			Msg("ledger drift corrected")
	}
	return report, nil
}

// AuditAll checks every item and returns the ones that drifted
func (s *Ledger) AuditAll(ctx context.Context) ([]DriftReport, error) {
	var ids []string
	err := s.read(ctx, func() error {
		var err error
		ids, err = s.items.IDs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	drifts := []DriftReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		report, err := s.CheckConsistency(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			// deleted since the listing
			continue
		}
		if err != nil {
			return drifts, err
		}
		if report.Drifted {
			drifts = append(drifts, *report)
		}
	}

	s.logger.Info().Int("items", len(ids)).Int("drifted", len(drifts)).Msg("ledger audit finished")
	return drifts, nil
}
