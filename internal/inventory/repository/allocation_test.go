package repository_test

import (
	"context"
	"testing"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- AllocationRepository Tests ---

func TestAllocationRepository_CreateAndGet(t *testing.T) {
	r := setupSQLite(t)
	ctx := context.Background()
	itemID := r.seedItem(t)
	unitIDs := testutil.UnitIDs(r.fx.Units(t, itemID, 2, "rented"))

	a := &repository.Allocation{
		ItemID:       itemID,
		ConsumerType: repository.ConsumerRental,
		ConsumerRef:  "R-100",
		AllocatedBy:  "ops@rentora.test",
	}
	require.NoError(t, r.allocations.Create(ctx, a, unitIDs))
	assert.Equal(t, 2, a.Quantity)

	got, err := r.allocations.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "R-100", got.ConsumerRef)
	assert.Nil(t, got.ReleasedAt)
	assert.ElementsMatch(t, unitIDs, got.ActiveUnitIDs())

	_, err = r.allocations.GetByID(ctx, "0190f0aa-0000-7000-8000-000000000000")
	assertCode(t, err, "NOT_FOUND")
}

func TestAllocationRepository_UnitInOneActiveAllocation(t *testing.T) {
	r := setupSQLite(t)
	ctx := context.Background()
	itemID := r.seedItem(t)
	unitIDs := testutil.UnitIDs(r.fx.Units(t, itemID, 1, "rented"))

	first := &repository.Allocation{ItemID: itemID, ConsumerType: repository.ConsumerRental, ConsumerRef: "R-1"}
	require.NoError(t, r.allocations.Create(ctx, first, unitIDs))

	second := &repository.Allocation{ItemID: itemID, ConsumerType: repository.ConsumerSale, ConsumerRef: "S-1"}
	err := r.db.Transaction(ctx, func(ctx context.Context) error {
		return r.allocations.Create(ctx, second, unitIDs)
	})
	assertCode(t, err, "CONFLICT")
}

func TestAllocationRepository_ReleaseLinks(t *testing.T) {
	r := setupSQLite(t)
	ctx := context.Background()
	itemID := r.seedItem(t)
	unitIDs := testutil.UnitIDs(r.fx.Units(t, itemID, 3, "rented"))

	ref := repository.ConsumerRef{Type: repository.ConsumerRental, Ref: "R-7"}
	a := &repository.Allocation{ItemID: itemID, ConsumerType: ref.Type, ConsumerRef: ref.Ref}
	require.NoError(t, r.allocations.Create(ctx, a, unitIDs))

	// partial release keeps the allocation open
	touched, err := r.allocations.ReleaseLinks(ctx, unitIDs[:1], "ops")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, touched)

	got, err := r.allocations.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReleasedAt)
	assert.ElementsMatch(t, unitIDs[1:], got.ActiveUnitIDs())

	held, err := r.allocations.ActiveUnitIDs(ctx, ref)
	require.NoError(t, err)
	assert.ElementsMatch(t, unitIDs[1:], held[itemID])

	// releasing the rest closes it
	_, err = r.allocations.ReleaseLinks(ctx, unitIDs, "ops")
	require.NoError(t, err)

	got, err = r.allocations.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ReleasedAt)
	assert.Empty(t, got.ActiveUnitIDs())

	active, err := r.allocations.ListByConsumer(ctx, ref, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := r.allocations.ListByConsumer(ctx, ref, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ops", all[0].Units[0].ReleasedBy)

	// nothing left to close
	touched, err = r.allocations.ReleaseLinks(ctx, unitIDs, "ops")
	require.NoError(t, err)
	assert.Empty(t, touched)
}
