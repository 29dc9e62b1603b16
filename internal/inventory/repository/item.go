package repository

import (
	"context"
	"strings"
	"time"

	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// Item is a catalog entry backed by serialized units.
// The quantity fields are cached aggregates of the unit statuses; only
// RefreshCounters writes them.
type Item struct {
	ID                    string    `db:"id" json:"id"`
	CategoryID            string    `db:"category_id" json:"category_id"`
	Name                  string    `db:"name" json:"name"`
	Model                 string    `db:"model" json:"model"`
	Location              string    `db:"location" json:"location"`
	QuantityInStock       int       `db:"quantity_in_stock" json:"quantity_in_stock"`
	QuantityRentedOut     int       `db:"quantity_rented_out" json:"quantity_rented_out"`
	QuantityInMaintenance int       `db:"quantity_in_maintenance" json:"quantity_in_maintenance"`
	Version               int64     `db:"version" json:"version"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// ItemFilter filters item listings
type ItemFilter struct {
	CategoryID string
	Search     string
	Limit      int
	Offset     int
}

// ItemRepository handles inventory item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, category_id, name, model, location, quantity_in_stock, quantity_rented_out,
	quantity_in_maintenance, version, created_at, updated_at`

// Create creates a new inventory item with zeroed counters
func (r *ItemRepository) Create(ctx context.Context, item *Item) error {
	if item.ID == "" {
		item.ID = newID()
	}
	ts := now()
	item.CreatedAt, item.UpdatedAt = ts, ts

	_, err := r.db.Q(ctx).Exec(ctx, `
		INSERT INTO inventory_items (id, category_id, name, model, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CategoryID, item.Name, item.Model, item.Location, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if appErr := database.MapError(err); appErr != nil {
			if errors.Is(appErr, errors.ErrBadRequest) {
				// the only foreign key is the category
				return errors.NotFoundWithKey("category")
			}
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	var item Item
	err := r.db.Q(ctx).Get(ctx, &item, `SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, id)
	if database.IsNoRows(err) {
		return nil, errors.NotFoundWithKey("item")
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List lists items ordered by name, with the total matching count
func (r *ItemRepository) List(ctx context.Context, f ItemFilter) ([]Item, int64, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.CategoryID != "" {
		where += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Search != "" {
		where += ` AND (LOWER(name) LIKE ? OR LOWER(model) LIKE ?)`
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
	}

	q := r.db.Q(ctx)

	var total int64
	if err := q.Get(ctx, &total, `SELECT COUNT(*) FROM inventory_items`+where, args...); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	items := []Item{}
	err := q.Select(ctx, &items,
		`SELECT `+itemColumns+` FROM inventory_items`+where+` ORDER BY name, id LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// IDs returns every item id in ascending order
func (r *ItemRepository) IDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := r.db.Q(ctx).Select(ctx, &ids, `SELECT id FROM inventory_items ORDER BY id`)
	return ids, err
}

// IDsByCategory returns the ids of a category's items in ascending order
func (r *ItemRepository) IDsByCategory(ctx context.Context, categoryID string) ([]string, error) {
	ids := []string{}
	err := r.db.Q(ctx).Select(ctx, &ids,
		`SELECT id FROM inventory_items WHERE category_id = ? ORDER BY id`, categoryID)
	return ids, err
}

// GetMany loads the given items; missing ids are absent from the result
func (r *ItemRepository) GetMany(ctx context.Context, ids []string) ([]Item, error) {
	items := []Item{}
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.Q(ctx).SelectIn(ctx, &items,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id IN (?) ORDER BY id`, ids)
	return items, err
}

// Update saves the editable item fields
func (r *ItemRepository) Update(ctx context.Context, item *Item) error {
	item.UpdatedAt = now()
	n, err := r.db.Q(ctx).RowsAffected(ctx, `
		UPDATE inventory_items SET name = ?, model = ?, location = ?, updated_at = ?
		WHERE id = ?`, item.Name, item.Model, item.Location, item.UpdatedAt, item.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundWithKey("item")
	}
	return nil
}

// Delete removes an item; its units and allocations cascade
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	n, err := r.db.Q(ctx).RowsAffected(ctx, `DELETE FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundWithKey("item")
	}
	return nil
}

// Lock bumps the item's version. Inside a transaction this is the first write,
// so it takes the item's row lock (Postgres) or the database write lock
// (SQLite) until commit, and makes cached availability for older versions
// unreachable. Returns NotFound if the item does not exist.
func (r *ItemRepository) Lock(ctx context.Context, id string) error {
	n, err := r.db.Q(ctx).RowsAffected(ctx,
		`UPDATE inventory_items SET version = version + 1, updated_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundWithKey("item")
	}
	return nil
}

// RefreshCounters recomputes the cached counters from the item's units.
// Call it in the same transaction that changed the units.
func (r *ItemRepository) RefreshCounters(ctx context.Context, id string) error {
	_, err := r.db.Q(ctx).Exec(ctx, `
		UPDATE inventory_items SET
			quantity_in_stock = (SELECT COUNT(*) FROM inventory_units WHERE item_id = ? AND status = ?),
			quantity_rented_out = (SELECT COUNT(*) FROM inventory_units WHERE item_id = ? AND status = ?),
			quantity_in_maintenance = (SELECT COUNT(*) FROM inventory_units WHERE item_id = ? AND status = ?)
		WHERE id = ?`,
		id, UnitInStock, id, UnitRented, id, UnitMaintenance, id)
	return err
}

// Version reads the current version of an item
func (r *ItemRepository) Version(ctx context.Context, id string) (int64, error) {
	var v int64
	err := r.db.Q(ctx).Get(ctx, &v, `SELECT version FROM inventory_items WHERE id = ?`, id)
	if database.IsNoRows(err) {
		return 0, errors.NotFoundWithKey("item")
	}
	return v, err
}

// ItemSummary is the availability view of an item used by selection screens
type ItemSummary struct {
	ItemID      string `json:"item_id"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	Available   int    `json:"available"`
	Rented      int    `json:"rented"`
	Maintenance int    `json:"maintenance"`
	Retired     int    `json:"retired"`
	Total       int    `json:"total"`
	Version     int64  `json:"version"`
}

// NewItemSummary combines an item with its live unit counts
func NewItemSummary(item *Item, counts StatusCounts) ItemSummary {
	return ItemSummary{
		ItemID:      item.ID,
		Name:        item.Name,
		Model:       item.Model,
		Available:   counts.InStock,
		Rented:      counts.Rented,
		Maintenance: counts.Maintenance,
		Retired:     counts.Retired,
		Total:       counts.Total(),
		Version:     item.Version,
	}
}
