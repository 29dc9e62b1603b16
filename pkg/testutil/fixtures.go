package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rentora/rentora-backend/pkg/database"
)

// CategoryFixture represents test category data
type CategoryFixture struct {
	ID   string
	Name string
}

// ItemFixture represents test item data. The counters are written as given,
// so a fixture can start out drifted from its units.
type ItemFixture struct {
	ID                    string
	CategoryID            string
	Name                  string
	Model                 string
	Location              string
	QuantityInStock       int
	QuantityRentedOut     int
	QuantityInMaintenance int
}

// UnitFixture represents test unit data
type UnitFixture struct {
	ID           string
	ItemID       string
	SerialNumber string
	Barcode      string
	Status       string
	Location     string
	CreatedAt    time.Time
}

// FixtureFactory creates test fixtures with sensible defaults and writes
// them straight to the database, bypassing the services.
type FixtureFactory struct {
	db       *database.DB
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *database.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

func newFixtureID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Category inserts a category
func (f *FixtureFactory) Category(t *testing.T, opts ...func(*CategoryFixture)) CategoryFixture {
	t.Helper()
	seq := f.nextSeq()
	c := CategoryFixture{
		ID:   newFixtureID(),
		Name: fmt.Sprintf("Category %d", seq),
	}
	for _, opt := range opts {
		opt(&c)
	}

	f.exec(t, `INSERT INTO categories (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, fixtureTime(), fixtureTime())
	return c
}

// WithCategoryName sets the category name
func WithCategoryName(name string) func(*CategoryFixture) {
	return func(c *CategoryFixture) {
		c.Name = name
	}
}

// Item inserts an item into the given category
func (f *FixtureFactory) Item(t *testing.T, categoryID string, opts ...func(*ItemFixture)) ItemFixture {
	t.Helper()
	seq := f.nextSeq()
	i := ItemFixture{
		ID:         newFixtureID(),
		CategoryID: categoryID,
		Name:       fmt.Sprintf("Projector %d", seq),
		Model:      fmt.Sprintf("PX-%03d", seq),
		Location:   "Warehouse A",
	}
	for _, opt := range opts {
		opt(&i)
	}

	f.exec(t, `
		INSERT INTO inventory_items (id, category_id, name, model, location,
			quantity_in_stock, quantity_rented_out, quantity_in_maintenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.CategoryID, i.Name, i.Model, i.Location,
		i.QuantityInStock, i.QuantityRentedOut, i.QuantityInMaintenance, fixtureTime(), fixtureTime())
	return i
}

// WithItemName sets the item name
func WithItemName(name string) func(*ItemFixture) {
	return func(i *ItemFixture) {
		i.Name = name
	}
}

// WithCounters sets the cached counters written with the item
func WithCounters(inStock, rented, maintenance int) func(*ItemFixture) {
	return func(i *ItemFixture) {
		i.QuantityInStock = inStock
		i.QuantityRentedOut = rented
		i.QuantityInMaintenance = maintenance
	}
}

// Units inserts n units of an item in the given status. Creation times are
// one millisecond apart so ordering is deterministic.
func (f *FixtureFactory) Units(t *testing.T, itemID string, n int, status string) []UnitFixture {
	t.Helper()
	base := fixtureTime()
	units := make([]UnitFixture, 0, n)
	for k := 0; k < n; k++ {
		seq := f.nextSeq()
		u := UnitFixture{
			ID:           newFixtureID(),
			ItemID:       itemID,
			SerialNumber: fmt.Sprintf("FIX%010d", seq),
			Barcode:      fmt.Sprintf("%012d", 900000000000+seq),
			Status:       status,
			Location:     "Warehouse A",
			CreatedAt:    base.Add(time.Duration(k) * time.Millisecond),
		}
		f.exec(t, `
			INSERT INTO inventory_units (id, item_id, serial_number, barcode, status, location, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
			u.ID, u.ItemID, u.SerialNumber, u.Barcode, u.Status, u.Location, u.CreatedAt, u.CreatedAt)
		units = append(units, u)
	}
	return units
}

func (f *FixtureFactory) exec(t *testing.T, query string, args ...any) {
	t.Helper()
	if _, err := f.db.Q(context.Background()).Exec(context.Background(), query, args...); err != nil {
		t.Fatalf("inserting fixture: %v", err)
	}
}

func fixtureTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// UnitIDs extracts the ids of unit fixtures
func UnitIDs(units []UnitFixture) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}
