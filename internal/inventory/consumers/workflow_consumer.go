package consumers

import (
	"context"
	stderrors "errors"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/actor"
	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/messaging"
)

const queueName = "inventory-service.workflow-events"

// ConsumerReleaser returns every unit a rental, sale or service still holds
type ConsumerReleaser interface {
	ReleaseConsumer(ctx context.Context, consumer repository.ConsumerRef) (*service.ReleaseResult, error)
}

// WorkflowEventConsumer releases units when the records holding them go away
type WorkflowEventConsumer struct {
	consumer *messaging.Consumer
	releaser ConsumerReleaser
	logger   *logger.Logger
}

// NewWorkflowEventConsumer binds the workflow queue to the customer and rental exchanges
func NewWorkflowEventConsumer(rmq *messaging.RabbitMQ, releaser ConsumerReleaser, log *logger.Logger) (*WorkflowEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, queueName, log)
	if err != nil {
		return nil, err
	}

	bindings := []struct{ exchange, key string }{
		{messaging.ExchangeCustomerEvents, "customer.#"},
		{messaging.ExchangeRentalEvents, "rental.#"},
		{messaging.ExchangeRentalEvents, "sale.#"},
		{messaging.ExchangeRentalEvents, "service.#"},
	}
	for _, b := range bindings {
		if err := consumer.Subscribe(b.exchange, b.key); err != nil {
			return nil, err
		}
	}

	c := newWorkflowEventConsumer(releaser, log)
	c.consumer = consumer
	c.register(consumer.RegisterHandler)
	return c, nil
}

func newWorkflowEventConsumer(releaser ConsumerReleaser, log *logger.Logger) *WorkflowEventConsumer {
	return &WorkflowEventConsumer{releaser: releaser, logger: log.WithComponent("workflow_consumer")}
}

func (c *WorkflowEventConsumer) register(add func(string, messaging.MessageHandler)) {
	add(messaging.EventCustomerDeleted, c.handleCustomerDeleted)
	add(messaging.EventRentalCancelled, c.cancelled(repository.ConsumerRental))
	add(messaging.EventSaleCancelled, c.cancelled(repository.ConsumerSale))
	add(messaging.EventServiceCancelled, c.cancelled(repository.ConsumerService))
}

// Start starts consuming messages
func (c *WorkflowEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *WorkflowEventConsumer) handleCustomerDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.CustomerDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("customer_id", data.CustomerID).
		Int("consumer_refs", len(data.ConsumerRefs)).
		Msg("received customer deleted event")

	// An invalid ref must not keep the customer's other refs held, so those
	// are collected and reported once every ref was tried.
	var invalid []error
	for _, ref := range data.ConsumerRefs {
		consumer := repository.ConsumerRef{Type: repository.ConsumerType(ref.Type), Ref: ref.Ref}
		err := c.release(ctx, event, consumer)
		if errors.Is(err, errors.ErrValidation) {
			invalid = append(invalid, err)
			continue
		}
		if err != nil {
			return err
		}
	}
	return stderrors.Join(invalid...)
}

func (c *WorkflowEventConsumer) cancelled(kind repository.ConsumerType) messaging.MessageHandler {
	return func(ctx context.Context, event *messaging.Event) error {
		var data messaging.WorkflowCancelledEvent
		if err := event.UnmarshalData(&data); err != nil {
			return err
		}
		c.logger.Info().
			Str("event_type", event.Type).
			Str("ref", data.Ref).
			Str("reason", data.Reason).
			Msg("received workflow cancelled event")
		return c.release(ctx, event, repository.ConsumerRef{Type: kind, Ref: data.Ref})
	}
}

// release runs as a system actor named after the event source. Errors go
// back to the messaging consumer, which drops validation failures and
// redelivers the rest.
func (c *WorkflowEventConsumer) release(ctx context.Context, event *messaging.Event, consumer repository.ConsumerRef) error {
	source := event.Source
	if source == "" {
		source = "workflow-events"
	}
	ctx = actor.WithActor(ctx, actor.SystemActor(source))

	res, err := c.releaser.ReleaseConsumer(ctx, consumer)
	if err != nil {
		return err
	}

	c.logger.Info().
		Str("event_id", event.ID).
		Str("consumer_ref", consumer.String()).
		Int("released", len(res.Released)).
		Msg("consumer units released")
	return nil
}
