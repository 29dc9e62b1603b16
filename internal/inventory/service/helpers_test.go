package service_test

import (
	"context"
	"testing"

	"github.com/rentora/rentora-backend/internal/inventory/events"
	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/actor"
	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/testutil"
	"github.com/stretchr/testify/require"
)

type env struct {
	*service.Services
	db     *database.DB
	events *testutil.MockPublisher
	fx     *testutil.FixtureFactory
	units  *repository.UnitRepository
	items  *repository.ItemRepository
}

func newEnv(t *testing.T, opts ...service.EngineOption) *env {
	t.Helper()
	return newEnvOn(t, testutil.NewSQLiteDB(t), opts...)
}

func newEnvOn(t *testing.T, db *database.DB, opts ...service.EngineOption) *env {
	t.Helper()
	pub := testutil.NewMockPublisher()
	log := logger.Nop()

	opts = append([]service.EngineOption{service.WithPublisher(events.NewWithSink(pub, log))}, opts...)
	e := service.NewEngine(db, log, opts...)

	return &env{
		Services: service.NewServices(e),
		db:       db,
		events:   pub,
		fx:       testutil.NewFixtureFactory(db),
		units:    repository.NewUnitRepository(db),
		items:    repository.NewItemRepository(db),
	}
}

func userCtx() context.Context {
	return actor.WithActor(context.Background(), &actor.Actor{ID: "u-1", Email: "ops@rentora.test", Source: actor.SourceToken})
}

// createItem creates a category and an item with n units through the ledger
func (e *env) createItem(t *testing.T, n int) *service.ItemDetail {
	t.Helper()
	c := e.fx.Category(t)
	item, err := e.Ledger.CreateItem(userCtx(), service.CreateItemInput{
		CategoryID:      c.ID,
		Name:            "Projector",
		Model:           "PX-1",
		Location:        "Warehouse A",
		InitialQuantity: n,
	})
	require.NoError(t, err)
	return item
}

// assertLedgerConsistent checks the cached counters against live counts
func (e *env) assertLedgerConsistent(t *testing.T, itemID string) repository.StatusCounts {
	t.Helper()
	ctx := context.Background()
	item, err := e.items.GetByID(ctx, itemID)
	require.NoError(t, err)
	live, err := e.units.CountByStatus(ctx, itemID)
	require.NoError(t, err)

	require.Equal(t, live.InStock, item.QuantityInStock, "in-stock counter")
	require.Equal(t, live.Rented, item.QuantityRentedOut, "rented counter")
	require.Equal(t, live.Maintenance, item.QuantityInMaintenance, "maintenance counter")

	units, err := e.units.ListByItem(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, len(units), live.Total())
	return live
}

// takeSerial stores a unit with serial under an unrelated item
func (e *env) takeSerial(t *testing.T, serial string) {
	t.Helper()
	c := e.fx.Category(t)
	other := e.fx.Item(t, c.ID)
	require.NoError(t, e.units.Insert(context.Background(), []*repository.Unit{{
		ItemID:       other.ID,
		SerialNumber: serial,
		Barcode:      "000000000001",
		Status:       repository.UnitInStock,
	}}))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errors.Code(err), "unexpected error: %v", err)
}

func rental(ref string) repository.ConsumerRef {
	return repository.ConsumerRef{Type: repository.ConsumerRental, Ref: ref}
}
