package messaging

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published by the inventory service
const (
	EventItemCreated     = "inventory.item.created"
	EventItemReconciled  = "inventory.item.reconciled"
	EventItemDeleted     = "inventory.item.deleted"
	EventCategoryDeleted = "inventory.category.deleted"
	EventUnitsAllocated  = "inventory.units.allocated"
	EventUnitsReleased   = "inventory.units.released"
	EventLedgerDrift     = "inventory.ledger.drift"
)

// Event types consumed from the customer and rental workflows
const (
	EventCustomerDeleted  = "customer.deleted"
	EventRentalCancelled  = "rental.cancelled"
	EventSaleCancelled    = "sale.cancelled"
	EventServiceCancelled = "service.cancelled"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeCustomerEvents  = "customer.events"
	ExchangeRentalEvents    = "rental.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// ErrMalformedEvent marks event data that cannot be decoded. Redelivery
// cannot fix it.
var ErrMalformedEvent = stderrors.New("malformed event data")

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, e.Type, err)
	}
	return nil
}

// Inventory events

// ItemCreatedEvent is published when an item and its initial units are created
type ItemCreatedEvent struct {
	ItemID     string `json:"item_id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Model      string `json:"model"`
	Quantity   int    `json:"quantity"`
}

// ItemReconciledEvent is published when a quantity change created or removed units
type ItemReconciledEvent struct {
	ItemID   string   `json:"item_id"`
	Previous int      `json:"previous"`
	Target   int      `json:"target"`
	Created  []string `json:"created_unit_ids,omitempty"`
	Removed  []string `json:"removed_unit_ids,omitempty"`
}

// ItemDeletedEvent is published when an item and its units are deleted
type ItemDeletedEvent struct {
	ItemID       string `json:"item_id"`
	CategoryID   string `json:"category_id"`
	UnitsRemoved int    `json:"units_removed"`
}

// CategoryDeletedEvent is published after a cascading category delete
type CategoryDeletedEvent struct {
	CategoryID   string `json:"category_id"`
	Name         string `json:"name"`
	ItemsRemoved int    `json:"items_removed"`
	UnitsRemoved int    `json:"units_removed"`
}

// UnitsAllocatedEvent is published when units are reserved for a consumer
type UnitsAllocatedEvent struct {
	AllocationID string   `json:"allocation_id"`
	ItemID       string   `json:"item_id"`
	ConsumerType string   `json:"consumer_type"`
	ConsumerRef  string   `json:"consumer_ref"`
	UnitIDs      []string `json:"unit_ids"`
	AllocatedBy  string   `json:"allocated_by"`
}

// UnitsReleasedEvent is published when rented units return to stock
type UnitsReleasedEvent struct {
	ItemIDs       []string `json:"item_ids"`
	UnitIDs       []string `json:"unit_ids"`
	AllocationIDs []string `json:"allocation_ids,omitempty"`
	ReleasedBy    string   `json:"released_by"`
}

// LedgerDriftEvent is published when the audit found and corrected cached counters
type LedgerDriftEvent struct {
	ItemID            string `json:"item_id"`
	CachedInStock     int    `json:"cached_in_stock"`
	LiveInStock       int    `json:"live_in_stock"`
	CachedRentedOut   int    `json:"cached_rented_out"`
	LiveRentedOut     int    `json:"live_rented_out"`
	CachedMaintenance int    `json:"cached_maintenance"`
	LiveMaintenance   int    `json:"live_maintenance"`
}

// Workflow events

// ConsumerRef identifies the rental, sale or service record holding units
type ConsumerRef struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

// CustomerDeletedEvent is published by the customer workflow. It carries every
// rental, sale and service record that belonged to the customer.
type CustomerDeletedEvent struct {
	CustomerID   string        `json:"customer_id"`
	ConsumerRefs []ConsumerRef `json:"consumer_refs"`
}

// WorkflowCancelledEvent is published when a rental, sale or service record is cancelled
type WorkflowCancelledEvent struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason,omitempty"`
}

// GenerateEventID generates a time-ordered event ID
func GenerateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
