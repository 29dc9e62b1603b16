package service

import (
	"context"
	stderrors "errors"
	"slices"
	"strconv"
	"strings"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// CategoryDeletion reports what a cascading category delete removed
type CategoryDeletion struct {
	CategoryID   string `json:"category_id"`
	ItemsRemoved int    `json:"items_removed"`
	UnitsRemoved int    `json:"units_removed"`
}

// Categories manages the category index
type Categories struct {
	*Engine
}

// NewCategories creates the category service
func NewCategories(e *Engine) *Categories {
	return &Categories{Engine: e}
}

// CreateCategory creates a category; ConflictError when the name is taken
func (s *Categories) CreateCategory(ctx context.Context, name string) (*repository.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.FieldValidation("name", "is required")
	}

	c := &repository.Category{Name: name}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info().Str("category_id", c.ID).Str("name", name).Msg("category created")
	return c, nil
}

// GetCategory returns a category with its item count
func (s *Categories) GetCategory(ctx context.Context, id string) (*repository.Category, error) {
	var c *repository.Category
	err := s.read(ctx, func() error {
		var err error
		c, err = s.categories.GetByID(ctx, id)
		return err
	})
	return c, err
}

// ListCategories lists categories with their item counts
func (s *Categories) ListCategories(ctx context.Context) ([]repository.Category, error) {
	var list []repository.Category
	err := s.read(ctx, func() error {
		var err error
		list, err = s.categories.List(ctx)
		return err
	})
	return list, err
}

// RenameCategory renames a category; ConflictError when the name is taken
func (s *Categories) RenameCategory(ctx context.Context, id, name string) (*repository.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.FieldValidation("name", "is required")
	}
	if err := s.categories.Rename(ctx, id, name); err != nil {
		return nil, err
	}
	return s.categories.GetByID(ctx, id)
}

const maxCategoryPasses = 3

var errCategoryItemsChanged = stderrors.New("category items changed while locking")

// DeleteCategory deletes a category with all of its items and units. It is
// refused while any unit in the category is rented.
//
// The item locks are planned from a listing taken before the transaction.
// Under the category lock the listing is repeated; when an item appeared in
// between, the pass is rolled back and planned again.
func (s *Categories) DeleteCategory(ctx context.Context, id string) (*CategoryDeletion, error) {
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *CategoryDeletion
	for pass := 0; pass < maxCategoryPasses; pass++ {
		result, err = s.deleteCategoryPass(ctx, id)
		if !stderrors.Is(err, errCategoryItemsChanged) {
			break
		}
		s.logger.Debug().Str("category_id", id).Int("pass", pass+1).Msg("category items changed, replanning delete")
	}
	if stderrors.Is(err, errCategoryItemsChanged) {
		err = errors.ConflictWithKey("inventory.category_busy", nil)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("category_id", id).Msg("delete category failed")
		return nil, err
	}

	s.publisher.CategoryDeleted(ctx, category, result.ItemsRemoved, result.UnitsRemoved)
	s.logger.Info().
		Str("category_id", id).
		Int("items_removed", result.ItemsRemoved).
		Int("units_removed", result.UnitsRemoved).
		Msg("category deleted")
	return result, nil
}

func (s *Categories) deleteCategoryPass(ctx context.Context, id string) (*CategoryDeletion, error) {
	itemIDs, err := s.items.IDsByCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &CategoryDeletion{CategoryID: id, ItemsRemoved: len(itemIDs)}
	err = s.mutateItems(ctx, itemIDs, func(ctx context.Context) error {
		if err := s.categories.Lock(ctx, id); err != nil {
			return err
		}
		current, err := s.items.IDsByCategory(ctx, id)
		if err != nil {
			return err
		}
		if !slices.Equal(current, itemIDs) {
			return errCategoryItemsChanged
		}

		rented, err := s.units.CountInCategory(ctx, id, repository.UnitRented)
		if err != nil {
			return err
		}
		if rented > 0 {
			return errors.PreconditionFailedWithKey("inventory.units_rented", map[string]string{
				"count": strconv.Itoa(rented),
			})
		}
		if result.UnitsRemoved, err = s.units.CountTotalInCategory(ctx, id); err != nil {
			return err
		}
		return s.categories.Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
