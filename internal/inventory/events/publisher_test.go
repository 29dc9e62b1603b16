package events_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/rentora/rentora-backend/internal/inventory/events"
	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/messaging"
	"github.com/rentora/rentora-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryEventPublisher_NilIsSafe(t *testing.T) {
	var p *events.InventoryEventPublisher
	assert.NotPanics(t, func() {
		p.ItemCreated(context.Background(), &repository.Item{ID: "i"}, 2)
		p.UnitsReleased(context.Background(), []string{"i"}, []string{"u"}, nil, "ops")
	})
}

func TestInventoryEventPublisher_UnitsAllocated(t *testing.T) {
	sink := testutil.NewMockPublisher()
	p := events.NewWithSink(sink, logger.Nop())

	p.UnitsAllocated(context.Background(), &repository.Allocation{
		ID:           "a-1",
		ItemID:       "i-1",
		ConsumerType: repository.ConsumerRental,
		ConsumerRef:  "R-1",
		AllocatedBy:  "ops@rentora.test",
		Units:        []repository.UnitLink{{UnitID: "u-1"}, {UnitID: "u-2"}},
	})

	published := sink.Events(messaging.EventUnitsAllocated)
	require.Len(t, published, 1)
	data, ok := published[0].Payload.(messaging.UnitsAllocatedEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"u-1", "u-2"}, data.UnitIDs)
	assert.Equal(t, "rental", data.ConsumerType)
}

func TestInventoryEventPublisher_EmptyReleaseIsSkipped(t *testing.T) {
	sink := testutil.NewMockPublisher()
	p := events.NewWithSink(sink, logger.Nop())

	p.UnitsReleased(context.Background(), nil, nil, nil, "ops")
	sink.AssertNoEventsPublished(t)
}

func TestInventoryEventPublisher_SinkErrorIsSwallowed(t *testing.T) {
	sink := testutil.NewMockPublisher()
	sink.Err = stderrors.New("broker down")
	p := events.NewWithSink(sink, logger.Nop())

	assert.NotPanics(t, func() {
		p.LedgerDrift(context.Background(), "i-1",
			repository.StatusCounts{InStock: 5}, repository.StatusCounts{InStock: 3})
	})
	sink.AssertEventPublished(t, messaging.EventLedgerDrift)
}
