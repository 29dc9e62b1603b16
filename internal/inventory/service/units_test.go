package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitStore_CreateUnit(t *testing.T) {
	e := newEnv(t)
	ctx := userCtx()
	item := e.createItem(t, 1)

	warranty := time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC)
	u, err := e.Units.CreateUnit(ctx, service.CreateUnitInput{
		ItemID:         item.ID,
		SerialNumber:   " SN-MANUAL-1 ",
		Barcode:        "400000000001",
		WarrantyExpiry: &warranty,
		Notes:          "bought second hand",
	})
	require.NoError(t, err)
	assert.Equal(t, "SN-MANUAL-1", u.SerialNumber)
	assert.Equal(t, repository.UnitInStock, u.Status)
	assert.Equal(t, "Warehouse A", u.Location, "location defaults to the item's")

	found, err := e.Units.FindBySerial(ctx, "SN-MANUAL-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	require.NotNil(t, found.WarrantyExpiry)
	assert.True(t, warranty.Equal(*found.WarrantyExpiry))

	assert.Equal(t, repository.StatusCounts{InStock: 2}, e.assertLedgerConsistent(t, item.ID))

	m, err := e.Units.CreateUnit(ctx, service.CreateUnitInput{
		ItemID: item.ID, SerialNumber: "SN-MANUAL-2", Barcode: "400000000002",
		Status: repository.UnitMaintenance, Location: "Repair bench",
	})
	require.NoError(t, err)
	assert.Equal(t, "Repair bench", m.Location)
	assert.Equal(t, repository.StatusCounts{InStock: 2, Maintenance: 1}, e.assertLedgerConsistent(t, item.ID))
}

func TestUnitStore_CreateUnitRejects(t *testing.T) {
	e := newEnv(t)
	ctx := userCtx()
	item := e.createItem(t, 1)
	existing, err := e.units.ListByItem(ctx, item.ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   service.CreateUnitInput
		code string
	}{
		{"blank serial", service.CreateUnitInput{ItemID: item.ID, Barcode: "1"}, "VALIDATION_ERROR"},
		{"blank barcode", service.CreateUnitInput{ItemID: item.ID, SerialNumber: "S"}, "VALIDATION_ERROR"},
		{"rented", service.CreateUnitInput{ItemID: item.ID, SerialNumber: "S", Barcode: "B", Status: repository.UnitRented}, "VALIDATION_ERROR"},
		{"unknown status", service.CreateUnitInput{ItemID: item.ID, SerialNumber: "S", Barcode: "B", Status: "lost"}, "VALIDATION_ERROR"},
		{"duplicate serial", service.CreateUnitInput{ItemID: item.ID, SerialNumber: existing[0].SerialNumber, Barcode: "B"}, "CONFLICT"},
		{"duplicate barcode", service.CreateUnitInput{ItemID: item.ID, SerialNumber: "S", Barcode: existing[0].Barcode}, "CONFLICT"},
		{"unknown item", service.CreateUnitInput{ItemID: "0190f0aa-0000-7000-8000-000000000000", SerialNumber: "S", Barcode: "B"}, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Units.CreateUnit(ctx, tt.in)
			requireCode(t, err, tt.code)
		})
	}
	assert.Equal(t, repository.StatusCounts{InStock: 1}, e.assertLedgerConsistent(t, item.ID))
}

func TestUnitStore_StatusMachine(t *testing.T) {
	e := newEnv(t)
	ctx := userCtx()
	item := e.createItem(t, 2)
	units, err := e.units.ListByItem(ctx, item.ID)
	require.NoError(t, err)
	id := units[0].ID

	_, err = e.Units.UpdateUnitStatus(ctx, id, repository.UnitRented)
	requireCode(t, err, "VALIDATION_ERROR")

	_, err = e.Units.UpdateUnitStatus(ctx, id, "lost")
	requireCode(t, err, "VALIDATION_ERROR")

	u, err := e.Units.UpdateUnitStatus(ctx, id, repository.UnitMaintenance)
	require.NoError(t, err)
	assert.Equal(t, repository.UnitMaintenance, u.Status)
	assert.Equal(t, 1, e.assertLedgerConsistent(t, item.ID).Maintenance)

	u, err = e.Units.UpdateUnitStatus(ctx, id, repository.UnitMaintenance)
	require.NoError(t, err, "same status is a no-op")
	assert.Equal(t, repository.UnitMaintenance, u.Status)

	_, err = e.Units.UpdateUnitStatus(ctx, id, repository.UnitRetired)
	require.NoError(t, err)

	_, err = e.Units.UpdateUnitStatus(ctx, id, repository.UnitInStock)
	requireCode(t, err, "PRECONDITION_FAILED")

	assert.Equal(t, repository.StatusCounts{InStock: 1, Retired: 1}, e.assertLedgerConsistent(t, item.ID))

	_, err = e.Units.UpdateUnitStatus(ctx, "0190f0aa-0000-7000-8000-000000000000", repository.UnitRetired)
	requireCode(t, err, "NOT_FOUND")
}

func TestUnitStore_LeavingRentedClosesLink(t *testing.T) {
	e := newEnv(t)
	ctx := userCtx()
	item := e.createItem(t, 2)

	res, err := e.Allocator.Allocate(ctx, item.ID, 1, rental("R-1"))
	require.NoError(t, err)
	e.events.Reset()

	_, err = e.Units.UpdateUnitStatus(ctx, res.Units[0].ID, repository.UnitRetired)
	require.NoError(t, err)
	e.events.AssertEventPublished(t, messaging.EventUnitsReleased)

	a, err := e.Allocator.GetAllocation(ctx, res.Allocation.ID)
	require.NoError(t, err)
	assert.NotNil(t, a.ReleasedAt)
	assert.Zero(t, mustCountActive(t, e, item.ID))
	assert.Equal(t, repository.StatusCounts{InStock: 1, Retired: 1}, e.assertLedgerConsistent(t, item.ID))
}

func TestUnitStore_UpdateUnit(t *testing.T) {
	e := newEnv(t)
	ctx := userCtx()
	item := e.createItem(t, 1)
	units, err := e.units.ListByItem(ctx, item.ID)
	require.NoError(t, err)

	u, err := e.Units.UpdateUnit(ctx, units[0].ID, service.UpdateUnitInput{Location: "Van 3", Notes: "scratched lens"})
	require.NoError(t, err)
	assert.Equal(t, "Van 3", u.Location)

	got, err := e.Units.GetUnit(ctx, units[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "scratched lens", got.Notes)
	assert.Equal(t, units[0].SerialNumber, got.SerialNumber)
}

func TestUnitStore_DeleteUnit(t *testing.T) {
	e := newEnv(t)
	ctx := userCtx()
	item := e.createItem(t, 2)

	res, err := e.Allocator.Allocate(ctx, item.ID, 1, rental("R-1"))
	require.NoError(t, err)
	rented := res.Units[0].ID

	requireCode(t, e.Units.DeleteUnit(ctx, rented), "PRECONDITION_FAILED")

	units, err := e.units.ListByItem(ctx, item.ID)
	require.NoError(t, err)
	for _, u := range units {
		if u.ID != rented {
			require.NoError(t, e.Units.DeleteUnit(ctx, u.ID))
		}
	}
	assert.Equal(t, repository.StatusCounts{Rented: 1}, e.assertLedgerConsistent(t, item.ID))

	_, err = e.Units.ListUnitsByItem(context.Background(), "0190f0aa-0000-7000-8000-000000000000")
	requireCode(t, err, "NOT_FOUND")
}
