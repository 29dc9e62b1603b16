package repository

import (
	"context"
	"time"

	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// Category groups items. ItemCount is derived on read.
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ItemCount int       `db:"item_count" json:"item_count"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CategoryRepository handles category persistence
type CategoryRepository struct {
	db *database.DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *database.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

const categorySelect = `
	SELECT c.id, c.name, c.created_at, c.updated_at,
	       (SELECT COUNT(*) FROM inventory_items i WHERE i.category_id = c.id) AS item_count
	FROM categories c`

// Create creates a new category; ConflictError on a duplicate name
func (r *CategoryRepository) Create(ctx context.Context, c *Category) error {
	if c.ID == "" {
		c.ID = newID()
	}
	ts := now()
	c.CreatedAt, c.UpdatedAt = ts, ts

	_, err := r.db.Q(ctx).Exec(ctx,
		`INSERT INTO categories (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.CreatedAt, c.UpdatedAt)
	return categoryWriteError(err, c.Name)
}

// GetByID gets a category with its derived item count
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*Category, error) {
	var c Category
	err := r.db.Q(ctx).Get(ctx, &c, categorySelect+` WHERE c.id = ?`, id)
	if database.IsNoRows(err) {
		return nil, errors.NotFoundWithKey("category")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List lists all categories by name
func (r *CategoryRepository) List(ctx context.Context) ([]Category, error) {
	categories := []Category{}
	err := r.db.Q(ctx).Select(ctx, &categories, categorySelect+` ORDER BY c.name`)
	return categories, err
}

// Rename changes a category's name; ConflictError on a duplicate name
func (r *CategoryRepository) Rename(ctx context.Context, id, name string) error {
	n, err := r.db.Q(ctx).RowsAffected(ctx,
		`UPDATE categories SET name = ?, updated_at = ? WHERE id = ?`, name, now(), id)
	if err != nil {
		return categoryWriteError(err, name)
	}
	if n == 0 {
		return errors.NotFoundWithKey("category")
	}
	return nil
}

// Lock takes the category's row lock for the rest of the transaction. Item
// creation and category deletion both take it, so neither sees the other
// half done.
func (r *CategoryRepository) Lock(ctx context.Context, id string) error {
	n, err := r.db.Q(ctx).RowsAffected(ctx, `UPDATE categories SET updated_at = updated_at WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundWithKey("category")
	}
	return nil
}

// Delete removes a category; items, units and allocations cascade
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	n, err := r.db.Q(ctx).RowsAffected(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundWithKey("category")
	}
	return nil
}

func categoryWriteError(err error, name string) error {
	if err == nil {
		return nil
	}
	if database.IsUniqueViolation(err, "name") {
		return errors.ConflictWithKey("inventory.category_name_taken", map[string]string{"name": name})
	}
	if appErr := database.MapError(err); appErr != nil {
		return appErr
	}
	return err
}
