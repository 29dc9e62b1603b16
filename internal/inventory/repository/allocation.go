package repository

import (
	"context"
	"time"

	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// ConsumerType names the workflow that holds an allocation
type ConsumerType string

const (
	ConsumerRental  ConsumerType = "rental"
	ConsumerSale    ConsumerType = "sale"
	ConsumerService ConsumerType = "service"
)

// Valid reports whether t is a known consumer type
func (t ConsumerType) Valid() bool {
	switch t {
	case ConsumerRental, ConsumerSale, ConsumerService:
		return true
	}
	return false
}

// ConsumerRef identifies the rental, sale or service record units are allocated to
type ConsumerRef struct {
	Type ConsumerType `json:"type" validate:"required,oneof=rental sale service"`
	Ref  string       `json:"ref" validate:"required,max=200"`
}

func (c ConsumerRef) String() string {
	return string(c.Type) + ":" + c.Ref
}

// Allocation binds a set of units of one item to a consumer.
// It is active while ReleasedAt is nil.
type Allocation struct {
	ID           string       `db:"id" json:"id"`
	ItemID       string       `db:"item_id" json:"item_id"`
	ConsumerType ConsumerType `db:"consumer_type" json:"consumer_type"`
	ConsumerRef  string       `db:"consumer_ref" json:"consumer_ref"`
	Quantity     int          `db:"quantity" json:"quantity"`
	AllocatedBy  string       `db:"allocated_by" json:"allocated_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	ReleasedAt   *time.Time   `db:"released_at" json:"released_at,omitempty"`
	Units        []UnitLink   `db:"-" json:"units"`
}

// UnitLink is one unit's membership in an allocation
type UnitLink struct {
	AllocationID string     `db:"allocation_id" json:"-"`
	UnitID       string     `db:"unit_id" json:"unit_id"`
	ReleasedAt   *time.Time `db:"released_at" json:"released_at,omitempty"`
	ReleasedBy   string     `db:"released_by" json:"released_by,omitempty"`
}

// ActiveUnitIDs returns the ids of units still held by the allocation
func (a *Allocation) ActiveUnitIDs() []string {
	ids := make([]string, 0, len(a.Units))
	for _, l := range a.Units {
		if l.ReleasedAt == nil {
			ids = append(ids, l.UnitID)
		}
	}
	return ids
}

// AllocationRepository handles allocation persistence
type AllocationRepository struct {
	db *database.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *database.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

const allocationColumns = `id, item_id, consumer_type, consumer_ref, quantity, allocated_by, created_at, released_at`

// Create stores an allocation with one active link per unit id. A unit that
// already has an active link violates the unique index and fails the insert.
func (r *AllocationRepository) Create(ctx context.Context, a *Allocation, unitIDs []string) error {
	if a.ID == "" {
		a.ID = newID()
	}
	a.CreatedAt = now()
	a.Quantity = len(unitIDs)

	q := r.db.Q(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO allocations (`+allocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ItemID, a.ConsumerType, a.ConsumerRef, a.Quantity, a.AllocatedBy, a.CreatedAt, nil)
	if err != nil {
		return mapAllocationError(err)
	}

	a.Units = make([]UnitLink, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO allocation_units (allocation_id, unit_id) VALUES (?, ?)`, a.ID, unitID); err != nil {
			return mapAllocationError(err)
		}
		a.Units = append(a.Units, UnitLink{AllocationID: a.ID, UnitID: unitID})
	}
	return nil
}

func mapAllocationError(err error) error {
	if appErr := database.MapError(err); appErr != nil {
		return appErr
	}
	return err
}

// GetByID gets an allocation with its unit links
func (r *AllocationRepository) GetByID(ctx context.Context, id string) (*Allocation, error) {
	var a Allocation
	err := r.db.Q(ctx).Get(ctx, &a, `SELECT `+allocationColumns+` FROM allocations WHERE id = ?`, id)
	if database.IsNoRows(err) {
		return nil, errors.NotFoundWithKey("allocation")
	}
	if err != nil {
		return nil, err
	}

	allocs := []Allocation{a}
	if err := r.loadLinks(ctx, allocs); err != nil {
		return nil, err
	}
	return &allocs[0], nil
}

// ListByConsumer lists a consumer's allocations, newest first
func (r *AllocationRepository) ListByConsumer(ctx context.Context, ref ConsumerRef, activeOnly bool) ([]Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE consumer_type = ? AND consumer_ref = ?`
	if activeOnly {
		query += ` AND released_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	allocs := []Allocation{}
	if err := r.db.Q(ctx).Select(ctx, &allocs, query, ref.Type, ref.Ref); err != nil {
		return nil, err
	}
	if err := r.loadLinks(ctx, allocs); err != nil {
		return nil, err
	}
	return allocs, nil
}

func (r *AllocationRepository) loadLinks(ctx context.Context, allocs []Allocation) error {
	if len(allocs) == 0 {
		return nil
	}
	ids := make([]string, len(allocs))
	index := make(map[string]int, len(allocs))
	for i := range allocs {
		ids[i] = allocs[i].ID
		index[allocs[i].ID] = i
		allocs[i].Units = []UnitLink{}
	}

	var links []UnitLink
	err := r.db.Q(ctx).SelectIn(ctx, &links, `
		SELECT allocation_id, unit_id, released_at, released_by
		FROM allocation_units WHERE allocation_id IN (?)
		ORDER BY unit_id`, ids)
	if err != nil {
		return err
	}
	for _, l := range links {
		i := index[l.AllocationID]
		allocs[i].Units = append(allocs[i].Units, l)
	}
	return nil
}

// ReleaseLinks closes the active links of the given units and returns the
// ids of the allocations they belonged to.
func (r *AllocationRepository) ReleaseLinks(ctx context.Context, unitIDs []string, releasedBy string) ([]string, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	q := r.db.Q(ctx)

	allocationIDs := []string{}
	err := q.SelectIn(ctx, &allocationIDs, `
		SELECT DISTINCT allocation_id FROM allocation_units
		WHERE unit_id IN (?) AND released_at IS NULL
		ORDER BY allocation_id`, unitIDs)
	if err != nil {
		return nil, err
	}
	if len(allocationIDs) == 0 {
		return allocationIDs, nil
	}

	ts := now()
	_, err = q.ExecIn(ctx, `
		UPDATE allocation_units SET released_at = ?, released_by = ?
		WHERE unit_id IN (?) AND released_at IS NULL`, ts, releasedBy, unitIDs)
	if err != nil {
		return nil, err
	}

	// An allocation is released once none of its links is active.
	_, err = q.ExecIn(ctx, `
		UPDATE allocations SET released_at = ?
		WHERE id IN (?) AND released_at IS NULL
		AND NOT EXISTS (
			SELECT 1 FROM allocation_units au
			WHERE au.allocation_id = allocations.id AND au.released_at IS NULL
		)`, ts, allocationIDs)
	if err != nil {
		return nil, err
	}
	return allocationIDs, nil
}

// ActiveUnitIDs returns the units a consumer currently holds, grouped by item
func (r *AllocationRepository) ActiveUnitIDs(ctx context.Context, ref ConsumerRef) (map[string][]string, error) {
	var rows []struct {
		ItemID string `db:"item_id"`
		UnitID string `db:"unit_id"`
	}
	err := r.db.Q(ctx).Select(ctx, &rows, `
		SELECT a.item_id, au.unit_id
		FROM allocations a
		JOIN allocation_units au ON au.allocation_id = a.id
		WHERE a.consumer_type = ? AND a.consumer_ref = ?
		AND a.released_at IS NULL AND au.released_at IS NULL
		ORDER BY a.item_id, au.unit_id`, ref.Type, ref.Ref)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string)
	for _, row := range rows {
		out[row.ItemID] = append(out[row.ItemID], row.UnitID)
	}
	return out, nil
}

// CountActiveUnits counts units with an active allocation link for an item
func (r *AllocationRepository) CountActiveUnits(ctx context.Context, itemID string) (int, error) {
	var n int
	err := r.db.Q(ctx).Get(ctx, &n, `
		SELECT COUNT(*) FROM allocation_units au
		JOIN allocations a ON a.id = au.allocation_id
		WHERE a.item_id = ? AND au.released_at IS NULL`, itemID)
	return n, err
}
