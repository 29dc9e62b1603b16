package service_test

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/rentora/rentora-backend/internal/inventory/cache"
	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/messaging"
	"github.com/rentora/rentora-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serialPattern = regexp.MustCompile(`^PRO\d{13}\d{3}$`)
var barcodePattern = regexp.MustCompile(`^\d{12}$`)

func TestLedger_CreateItem(t *testing.T) {
	e := newEnv(t)
	item := e.createItem(t, 5)

	assert.Equal(t, 5, item.Available)
	assert.Equal(t, 5, item.QuantityInStock)
	assert.Equal(t, repository.StatusCounts{InStock: 5}, item.Counts)

	units, err := e.Units.ListUnitsByItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, units, 5)

	serials := map[string]bool{}
	barcodes := map[string]bool{}
	for _, u := range units {
		assert.Equal(t, repository.UnitInStock, u.Status)
		assert.Equal(t, "Warehouse A", u.Location)
		assert.Regexp(t, serialPattern, u.SerialNumber)
		assert.Regexp(t, barcodePattern, u.Barcode)
		serials[u.SerialNumber] = true
		barcodes[u.Barcode] = true
	}
	assert.Len(t, serials, 5)
	assert.Len(t, barcodes, 5)

	e.events.AssertEventPublished(t, messaging.EventItemCreated)
	e.assertLedgerConsistent(t, item.ID)
}

func TestLedger_CreateItemValidation(t *testing.T) {
	e := newEnv(t)
	c := e.fx.Category(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   service.CreateItemInput
		code string
	}{
		{"zero quantity", service.CreateItemInput{CategoryID: c.ID, Name: "X", InitialQuantity: 0}, "VALIDATION_ERROR"},
		{"negative quantity", service.CreateItemInput{CategoryID: c.ID, Name: "X", InitialQuantity: -2}, "VALIDATION_ERROR"},
		{"blank name", service.CreateItemInput{CategoryID: c.ID, Name: "  ", InitialQuantity: 1}, "VALIDATION_ERROR"},
		{"missing category", service.CreateItemInput{Name: "X", InitialQuantity: 1}, "VALIDATION_ERROR"},
		{"unknown category", service.CreateItemInput{CategoryID: "0190f0aa-0000-7000-8000-000000000000", Name: "X", InitialQuantity: 1}, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Ledger.CreateItem(ctx, tt.in)
			requireCode(t, err, tt.code)
		})
	}

	ids, err := e.items.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "failed creates leave nothing behind")
}

func TestLedger_SetDeclaredQuantity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.createItem(t, 2)

	got, err := e.Ledger.SetDeclaredQuantity(ctx, item.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, got.QuantityInStock)
	assert.Equal(t, 6, got.Available)

	got, err = e.Ledger.SetDeclaredQuantity(ctx, item.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.QuantityInStock)

	_, err = e.Ledger.SetDeclaredQuantity(ctx, "0190f0aa-0000-7000-8000-000000000000", 1)
	requireCode(t, err, "NOT_FOUND")
}

func TestLedger_DeleteItem(t *testing.T) {
	e := newEnv(t)
	ctx := userCtx()
	item := e.createItem(t, 3)

	res, err := e.Allocator.Allocate(ctx, item.ID, 1, rental("R-1"))
	require.NoError(t, err)

	err = e.Ledger.DeleteItem(ctx, item.ID)
	requireCode(t, err, "PRECONDITION_FAILED")

	_, err = e.Allocator.Release(ctx, []string{res.Units[0].ID})
	require.NoError(t, err)

	require.NoError(t, e.Ledger.DeleteItem(ctx, item.ID))
	e.events.AssertEventPublished(t, messaging.EventItemDeleted)

	_, err = e.Units.FindBySerial(ctx, res.Units[0].SerialNumber)
	requireCode(t, err, "NOT_FOUND")
	requireCode(t, e.Ledger.DeleteItem(ctx, item.ID), "NOT_FOUND")
}

func TestLedger_AvailableQuantity(t *testing.T) {
	e := newEnv(t)
	ctx := userCtx()
	item := e.createItem(t, 4)

	_, err := e.Allocator.Allocate(ctx, item.ID, 3, rental("R-1"))
	require.NoError(t, err)

	n, err := e.Ledger.AvailableQuantity(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = e.Ledger.AvailableQuantity(ctx, "0190f0aa-0000-7000-8000-000000000000")
	requireCode(t, err, "NOT_FOUND")
}

func TestLedger_ListAndUpdateItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.createItem(t, 2)

	updated, err := e.Ledger.UpdateItem(ctx, item.ID, service.UpdateItemInput{Name: "Beamer", Model: "B2", Location: "Shelf 9"})
	require.NoError(t, err)
	assert.Equal(t, "Beamer", updated.Name)
	assert.Greater(t, updated.Version, item.Version)

	units, err := e.Units.ListUnitsByItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Warehouse A", units[0].Location, "existing units keep their location")

	list, total, err := e.Ledger.ListItems(ctx, repository.ItemFilter{Search: "beam"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Available)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]repository.ItemSummary
	hits    int
}

func (c *mapCache) Get(_ context.Context, itemID string, version int64) (*repository.ItemSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[cache.Key(itemID, version)]
	if ok {
		c.hits++
	}
	return &s, ok
}

func (c *mapCache) Set(_ context.Context, s repository.ItemSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cache.Key(s.ItemID, s.Version)] = s
}

func TestLedger_AvailabilityCache(t *testing.T) {
	mc := &mapCache{entries: map[string]repository.ItemSummary{}}
	e := newEnv(t, service.WithCache(mc))
	ctx := userCtx()
	item := e.createItem(t, 3)

	first, err := e.Ledger.ItemAvailability(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Available)
	assert.Equal(t, 0, mc.hits)

	_, err = e.Ledger.ItemAvailability(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, mc.hits)

	// the allocation bumps the version, so the cached entry is bypassed
	_, err = e.Allocator.Allocate(ctx, item.ID, 2, rental("R-1"))
	require.NoError(t, err)

	after, err := e.Ledger.ItemAvailability(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Available)
	assert.Equal(t, 2, after.Rented)
	assert.Equal(t, 1, mc.hits)

	batch, err := e.Ledger.Availability(ctx, []string{item.ID, "0190f0aa-0000-7000-8000-000000000000"})
	require.NoError(t, err)
	require.Len(t, batch, 1, "unknown ids are skipped")

	_, err = e.Ledger.ItemAvailability(ctx, "0190f0aa-0000-7000-8000-000000000000")
	requireCode(t, err, "NOT_FOUND")
}

func TestLedger_AuditCorrectsDrift(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c := e.fx.Category(t)
	drifted := e.fx.Item(t, c.ID, testutil.WithCounters(10, 0, 0))
	e.fx.Units(t, drifted.ID, 2, "in_stock")
	e.fx.Units(t, drifted.ID, 1, "rented")

	clean := e.createItem(t, 2)

	report, err := e.Ledger.CheckConsistency(ctx, clean.ID)
	require.NoError(t, err)
	assert.False(t, report.Drifted)

	drifts, err := e.Ledger.AuditAll(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, drifted.ID, drifts[0].ItemID)
	assert.Equal(t, 10, drifts[0].Cached.InStock)
	assert.Equal(t, repository.StatusCounts{InStock: 2, Rented: 1}, drifts[0].Live)

	e.assertLedgerConsistent(t, drifted.ID)
	e.events.AssertEventPublished(t, messaging.EventLedgerDrift)

	drifts, err = e.Ledger.AuditAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}
