package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// UnitStatus is the lifecycle state of a physical unit
type UnitStatus string

const (
	UnitInStock     UnitStatus = "in_stock"
	UnitRented      UnitStatus = "rented"
	UnitMaintenance UnitStatus = "maintenance"
	UnitRetired     UnitStatus = "retired"
)

// transitions lists the allowed moves. Retired is terminal.
var transitions = map[UnitStatus][]UnitStatus{
	UnitInStock:     {UnitRented, UnitMaintenance, UnitRetired},
	UnitRented:      {UnitInStock, UnitRetired},
	UnitMaintenance: {UnitInStock, UnitRetired},
}

// Valid reports whether s is a known status
func (s UnitStatus) Valid() bool {
	switch s {
	case UnitInStock, UnitRented, UnitMaintenance, UnitRetired:
		return true
	}
	return false
}

// CanTransition reports whether a unit may move from one status to another.
// Staying in the same status is not a transition.
func CanTransition(from, to UnitStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Unit is one serialized instance of an item
type Unit struct {
	ID             string     `db:"id" json:"id"`
	ItemID         string     `db:"item_id" json:"item_id"`
	SerialNumber   string     `db:"serial_number" json:"serial_number"`
	Barcode        string     `db:"barcode" json:"barcode"`
	Status         UnitStatus `db:"status" json:"status"`
	Location       string     `db:"location" json:"location"`
	WarrantyExpiry *time.Time `db:"warranty_expiry" json:"warranty_expiry,omitempty"`
	Notes          string     `db:"notes" json:"notes"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// StatusCounts is the live per-status unit count of an item
type StatusCounts struct {
	InStock     int `json:"in_stock"`
	Rented      int `json:"rented"`
	Maintenance int `json:"maintenance"`
	Retired     int `json:"retired"`
}

// Total counts every unit, retired ones included
func (c StatusCounts) Total() int {
	return c.InStock + c.Rented + c.Maintenance + c.Retired
}

// Active counts the units that make up the declared quantity
func (c StatusCounts) Active() int {
	return c.InStock + c.Rented + c.Maintenance
}

// Held counts units that are out of the warehouse's hands
func (c StatusCounts) Held() int {
	return c.Rented + c.Maintenance
}

func (c *StatusCounts) add(status UnitStatus, n int) {
	switch status {
	case UnitInStock:
		c.InStock += n
	case UnitRented:
		c.Rented += n
	case UnitMaintenance:
		c.Maintenance += n
	case UnitRetired:
		c.Retired += n
	}
}

// UnitSnapshot is the read projection served to the scan flow
type UnitSnapshot struct {
	UnitID         string     `db:"unit_id" json:"unit_id"`
	ItemID         string     `db:"item_id" json:"item_id"`
	SerialNumber   string     `db:"serial_number" json:"serial_number"`
	Barcode        string     `db:"barcode" json:"barcode"`
	Name           string     `db:"name" json:"name"`
	Model          string     `db:"model" json:"model"`
	Category       string     `db:"category" json:"category"`
	Location       string     `db:"location" json:"location"`
	WarrantyExpiry *time.Time `db:"warranty_expiry" json:"warranty,omitempty"`
	Status         UnitStatus `db:"status" json:"status"`
	Notes          string     `db:"notes" json:"notes"`
}

// UnitRepository handles unit persistence
type UnitRepository struct {
	db *database.DB
}

// NewUnitRepository creates a new unit repository
func NewUnitRepository(db *database.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

const unitColumns = `id, item_id, serial_number, barcode, status, location, warranty_expiry, notes, created_at, updated_at`

// Insert stores new units. IDs and timestamps are assigned when empty.
// Serial or barcode collisions surface as ConflictError.
func (r *UnitRepository) Insert(ctx context.Context, units []*Unit) error {
	ts := now()
	q := r.db.Q(ctx)
	for _, u := range units {
		if u.ID == "" {
			u.ID = newID()
		}
		if u.Status == "" {
			u.Status = UnitInStock
		}
		u.CreatedAt, u.UpdatedAt = ts, ts

		_, err := q.Exec(ctx, `
			INSERT INTO inventory_units (`+unitColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.ItemID, u.SerialNumber, u.Barcode, u.Status, u.Location, u.WarrantyExpiry, u.Notes,
			u.CreatedAt, u.UpdatedAt,
		)
		if err != nil {
			return uniqueUnitError(err, u)
		}
	}
	return nil
}

func uniqueUnitError(err error, u *Unit) error {
	switch {
	case database.IsUniqueViolation(err, "serial_number"):
		return errors.ConflictWithKey("inventory.serial_taken", map[string]string{"serial": u.SerialNumber})
	case database.IsUniqueViolation(err, "barcode"):
		return errors.ConflictWithKey("inventory.barcode_taken", map[string]string{"barcode": u.Barcode})
	}
	if appErr := database.MapError(err); appErr != nil {
		return appErr
	}
	return err
}

// GetByID gets a unit by ID
func (r *UnitRepository) GetByID(ctx context.Context, id string) (*Unit, error) {
	return r.getOne(ctx, `SELECT `+unitColumns+` FROM inventory_units WHERE id = ?`, id)
}

// GetBySerial gets a unit by its serial number
func (r *UnitRepository) GetBySerial(ctx context.Context, serial string) (*Unit, error) {
	return r.getOne(ctx, `SELECT `+unitColumns+` FROM inventory_units WHERE serial_number = ?`, serial)
}

func (r *UnitRepository) getOne(ctx context.Context, query string, arg any) (*Unit, error) {
	var u Unit
	err := r.db.Q(ctx).Get(ctx, &u, query, arg)
	if database.IsNoRows(err) {
		return nil, errors.NotFoundWithKey("unit")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListByItem lists an item's units in creation order
func (r *UnitRepository) ListByItem(ctx context.Context, itemID string) ([]Unit, error) {
	units := []Unit{}
	err := r.db.Q(ctx).Select(ctx, &units,
		`SELECT `+unitColumns+` FROM inventory_units WHERE item_id = ? ORDER BY created_at, id`, itemID)
	return units, err
}

// ListByIDs loads the given units; missing ids are simply absent from the result
func (r *UnitRepository) ListByIDs(ctx context.Context, ids []string) ([]Unit, error) {
	units := []Unit{}
	if len(ids) == 0 {
		return units, nil
	}
	err := r.db.Q(ctx).SelectIn(ctx, &units,
		`SELECT `+unitColumns+` FROM inventory_units WHERE id IN (?) ORDER BY id`, ids)
	return units, err
}

// CountByStatus counts an item's units per status
func (r *UnitRepository) CountByStatus(ctx context.Context, itemID string) (StatusCounts, error) {
	counts, err := r.CountByStatusForItems(ctx, []string{itemID})
	if err != nil {
		return StatusCounts{}, err
	}
	return counts[itemID], nil
}

// CountByStatusForItems counts units per status for several items at once.
// Items without units map to zero counts.
func (r *UnitRepository) CountByStatusForItems(ctx context.Context, itemIDs []string) (map[string]StatusCounts, error) {
	out := make(map[string]StatusCounts, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		ItemID string     `db:"item_id"`
		Status UnitStatus `db:"status"`
		N      int        `db:"n"`
	}
	err := r.db.Q(ctx).SelectIn(ctx, &rows, `
		SELECT item_id, status, COUNT(*) AS n
		FROM inventory_units
		WHERE item_id IN (?)
		GROUP BY item_id, status`, itemIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range itemIDs {
		out[id] = StatusCounts{}
	}
	for _, row := range rows {
		c := out[row.ItemID]
		c.add(row.Status, row.N)
		out[row.ItemID] = c
	}
	return out, nil
}

// CountAvailable counts an item's in-stock units
func (r *UnitRepository) CountAvailable(ctx context.Context, itemID string) (int, error) {
	var n int
	err := r.db.Q(ctx).Get(ctx, &n,
		`SELECT COUNT(*) FROM inventory_units WHERE item_id = ? AND status = ?`, itemID, UnitInStock)
	return n, err
}

// CountInCategory counts units in a status across every item of a category
func (r *UnitRepository) CountInCategory(ctx context.Context, categoryID string, status UnitStatus) (int, error) {
	var n int
	err := r.db.Q(ctx).Get(ctx, &n, `
		SELECT COUNT(*)
		FROM inventory_units u
		JOIN inventory_items i ON i.id = u.item_id
		WHERE i.category_id = ? AND u.status = ?`, categoryID, status)
	return n, err
}

// CountTotalInCategory counts every unit in a category
func (r *UnitRepository) CountTotalInCategory(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := r.db.Q(ctx).Get(ctx, &n, `
		SELECT COUNT(*)
		FROM inventory_units u
		JOIN inventory_items i ON i.id = u.item_id
		WHERE i.category_id = ?`, categoryID)
	return n, err
}

// InStockIDs returns up to limit in-stock unit ids of an item in ascending id order
func (r *UnitRepository) InStockIDs(ctx context.Context, itemID string, limit int) ([]string, error) {
	ids := []string{}
	err := r.db.Q(ctx).Select(ctx, &ids, `
		SELECT id FROM inventory_units
		WHERE item_id = ? AND status = ?
		ORDER BY id
		LIMIT ?`, itemID, UnitInStock, limit)
	return ids, err
}

// NewestInStockIDs returns up to limit in-stock unit ids, newest first
func (r *UnitRepository) NewestInStockIDs(ctx context.Context, itemID string, limit int) ([]string, error) {
	ids := []string{}
	err := r.db.Q(ctx).Select(ctx, &ids, `
		SELECT id FROM inventory_units
		WHERE item_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, itemID, UnitInStock, limit)
	return ids, err
}

// TransitionMany moves the given units from one status to another. Units not
// currently in from are left alone; the caller compares the returned count.
func (r *UnitRepository) TransitionMany(ctx context.Context, ids []string, from, to UnitStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.Q(ctx).ExecIn(ctx, `
		UPDATE inventory_units SET status = ?, updated_at = ?
		WHERE id IN (?) AND status = ?`, to, now(), ids, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Transition moves a single unit if it is still in from
func (r *UnitRepository) Transition(ctx context.Context, id string, from, to UnitStatus) (bool, error) {
	n, err := r.TransitionMany(ctx, []string{id}, from, to)
	return n == 1, err
}

// Update saves the editable unit fields (not status)
func (r *UnitRepository) Update(ctx context.Context, u *Unit) error {
	u.UpdatedAt = now()
	n, err := r.db.Q(ctx).RowsAffected(ctx, `
		UPDATE inventory_units SET location = ?, warranty_expiry = ?, notes = ?, updated_at = ?
		WHERE id = ?`, u.Location, u.WarrantyExpiry, u.Notes, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundWithKey("unit")
	}
	return nil
}

// Delete removes a unit; NotFound when it does not exist
func (r *UnitRepository) Delete(ctx context.Context, id string) error {
	n, err := r.db.Q(ctx).RowsAffected(ctx, `DELETE FROM inventory_units WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundWithKey("unit")
	}
	return nil
}

// DeleteInStock removes the given units if they are still in stock
func (r *UnitRepository) DeleteInStock(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.Q(ctx).ExecIn(ctx,
		`DELETE FROM inventory_units WHERE id IN (?) AND status = ?`, ids, UnitInStock)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Snapshot resolves a serial number or barcode to the scan projection
func (r *UnitRepository) Snapshot(ctx context.Context, code string) (*UnitSnapshot, error) {
	var s UnitSnapshot
	err := r.db.Q(ctx).Get(ctx, &s, `
		SELECT u.id AS unit_id, u.item_id, u.serial_number, u.barcode, i.name, i.model,
		       c.name AS category, u.location, u.warranty_expiry, u.status, u.notes
		FROM inventory_units u
		JOIN inventory_items i ON i.id = u.item_id
		JOIN categories c ON c.id = i.category_id
		WHERE u.serial_number = ? OR u.barcode = ?
		ORDER BY CASE WHEN u.serial_number = ? THEN 0 ELSE 1 END
		LIMIT 1`, code, code, code)
	if database.IsNoRows(err) {
		return nil, errors.NotFoundWithKey("unit")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// now is the timestamp written by repositories, at Postgres precision so that
// values read back compare equal on both drivers.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// newID returns a time-ordered id, so ascending id follows creation order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
