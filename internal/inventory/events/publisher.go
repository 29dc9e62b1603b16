package events

import (
	"context"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/messaging"
)

// Sink is the transport the typed publisher writes to. *messaging.Publisher
// implements it, and so does the test recorder.
type Sink interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// InventoryEventPublisher publishes inventory domain events. A nil publisher
// drops everything, so the service runs without a broker.
type InventoryEventPublisher struct {
	sink   Sink
	logger *logger.Logger
}

// NewInventoryEventPublisher declares the inventory exchange and returns a publisher on it
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}
	return NewWithSink(publisher, log), nil
}

// NewWithSink wraps an arbitrary sink
func NewWithSink(sink Sink, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{sink: sink, logger: log.WithComponent("event_publisher")}
}

// publish never fails the caller: the mutation is already committed.
func (p *InventoryEventPublisher) publish(ctx context.Context, eventType string, data any, subject string) {
	if p == nil || p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("subject", subject).
			Msg("failed to publish event")
	}
}

// ItemCreated publishes an item created event
func (p *InventoryEventPublisher) ItemCreated(ctx context.Context, item *repository.Item, quantity int) {
	p.publish(ctx, messaging.EventItemCreated, messaging.ItemCreatedEvent{
		ItemID:     item.ID,
		CategoryID: item.CategoryID,
		Name:       item.Name,
		Model:      item.Model,
		Quantity:   quantity,
	}, item.ID)
}

// ItemReconciled publishes the outcome of a quantity change that touched units
func (p *InventoryEventPublisher) ItemReconciled(ctx context.Context, itemID string, previous, target int, created, removed []string) {
	p.publish(ctx, messaging.EventItemReconciled, messaging.ItemReconciledEvent{
		ItemID:   itemID,
		Previous: previous,
		Target:   target,
		Created:  created,
		Removed:  removed,
	}, itemID)
}

// ItemDeleted publishes an item deleted event
func (p *InventoryEventPublisher) ItemDeleted(ctx context.Context, item *repository.Item, unitsRemoved int) {
	p.publish(ctx, messaging.EventItemDeleted, messaging.ItemDeletedEvent{
		ItemID:       item.ID,
		CategoryID:   item.CategoryID,
		UnitsRemoved: unitsRemoved,
	}, item.ID)
}

// CategoryDeleted publishes a category deleted event
func (p *InventoryEventPublisher) CategoryDeleted(ctx context.Context, c *repository.Category, itemsRemoved, unitsRemoved int) {
	p.publish(ctx, messaging.EventCategoryDeleted, messaging.CategoryDeletedEvent{
		CategoryID:   c.ID,
		Name:         c.Name,
		ItemsRemoved: itemsRemoved,
		UnitsRemoved: unitsRemoved,
	}, c.ID)
}

// UnitsAllocated publishes an allocation
func (p *InventoryEventPublisher) UnitsAllocated(ctx context.Context, a *repository.Allocation) {
	unitIDs := make([]string, len(a.Units))
	for i, l := range a.Units {
		unitIDs[i] = l.UnitID
	}
	p.publish(ctx, messaging.EventUnitsAllocated, messaging.UnitsAllocatedEvent{
		AllocationID: a.ID,
		ItemID:       a.ItemID,
		ConsumerType: string(a.ConsumerType),
		ConsumerRef:  a.ConsumerRef,
		UnitIDs:      unitIDs,
		AllocatedBy:  a.AllocatedBy,
	}, a.ID)
}

// UnitsReleased publishes units returning to stock
func (p *InventoryEventPublisher) UnitsReleased(ctx context.Context, itemIDs, unitIDs, allocationIDs []string, by string) {
	if len(unitIDs) == 0 {
		return
	}
	p.publish(ctx, messaging.EventUnitsReleased, messaging.UnitsReleasedEvent{
		ItemIDs:       itemIDs,
		UnitIDs:       unitIDs,
		AllocationIDs: allocationIDs,
		ReleasedBy:    by,
	}, unitIDs[0])
}

// LedgerDrift publishes a corrected counter drift
func (p *InventoryEventPublisher) LedgerDrift(ctx context.Context, itemID string, cached, live repository.StatusCounts) {
	p.publish(ctx, messaging.EventLedgerDrift, messaging.LedgerDriftEvent{
		ItemID:            itemID,
		CachedInStock:     cached.InStock,
		LiveInStock:       live.InStock,
		CachedRentedOut:   cached.Rented,
		LiveRentedOut:     live.Rented,
		CachedMaintenance: cached.Maintenance,
		LiveMaintenance:   live.Maintenance,
	}, itemID)
}
