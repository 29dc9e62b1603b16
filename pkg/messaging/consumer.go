package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/logger"
)

// RedeliveryHeader counts how often a message was handed back to its queue
// after a failed handler.
const RedeliveryHeader = "x-redeliveries"

const defaultMaxRedeliveries = 3

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// Consumer handles consuming events from RabbitMQ.
//
// A failed handler is settled by what its error says: invalid input is
// dropped, anything else is redelivered through the queue up to
// MaxRedeliveries times and then dead-lettered. Undecodable messages go to
// the dead letter queue at once.
type Consumer struct {
	rmq             *RabbitMQ
	queueName       string
	handlers        map[string]MessageHandler
	maxRedeliveries int
	republish       func(ctx context.Context, msg amqp.Publishing) error
	logger          *logger.Logger
}

// NewConsumer creates a new consumer for the given queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	_, err := rmq.DeclareQueue(queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	c := &Consumer{
		rmq:             rmq,
		queueName:       queueName,
		handlers:        make(map[string]MessageHandler),
		maxRedeliveries: rmq.MaxRedeliveries(),
		logger:          log,
	}
	c.republish = func(ctx context.Context, msg amqp.Publishing) error {
		return rmq.Publish(ctx, "", queueName, msg)
	}
	return c, nil
}

// Subscribe subscribes to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	// Declare the exchange first
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Bind the queue to the exchange
	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start starts consuming messages from the queue
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Int("max_redeliveries", c.limit()).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Str("queue", c.queueName).Msg("message channel closed")
					return
				}
				c.handleMessage(ctx, msg)
			}
		}
	}()

	return nil
}

// settlement is what happens to a delivery once its handler returned
type settlement int

const (
	settleAck settlement = iota
	settleDrop
	settleRedeliver
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleDrop:
		return "drop"
	case settleRedeliver:
		return "redeliver"
	default:
		return "dead-letter"
	}
}

// settle decides the fate of a delivery whose handler returned err after
// redeliveries earlier attempts.
func (c *Consumer) settle(err error, redeliveries int) settlement {
	switch {
	case err == nil:
		return settleAck
	case errors.Is(err, ErrMalformedEvent):
		return settleDeadLetter
	}
	switch errors.Code(err) {
	case "VALIDATION_ERROR", "BAD_REQUEST":
		return settleDrop
	}
	if redeliveries >= c.limit() {
		return settleDeadLetter
	}
	return settleRedeliver
}

func (c *Consumer) limit() int {
	if c.maxRedeliveries <= 0 {
		return defaultMaxRedeliveries
	}
	return c.maxRedeliveries
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Str("queue", c.queueName).Msg("failed to unmarshal event, dead-lettering")
		_ = msg.Reject(false)
		return
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().
			Str("event_type", event.Type).
			Msg("no handler registered for event type")
		_ = msg.Ack(false)
		return
	}

	c.logger.Debug().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Msg("processing event")

	err := handler(ctx, &event)
	redeliveries := redeliveryCount(msg)
	outcome := c.settle(err, redeliveries)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Str("error_code", errors.Code(err)).
			Int("redeliveries", redeliveries).
			Stringer("settlement", outcome).
			Msg("failed to process event")
	}

	switch outcome {
	case settleAck, settleDrop:
		_ = msg.Ack(false)
	case settleDeadLetter:
		_ = msg.Reject(false)
	case settleRedeliver:
		c.redeliver(ctx, msg, redeliveries+1)
	}
}

// redeliver puts a copy of msg back on the queue with the redelivery count
// raised, then acks the original. If the copy cannot be sent the original is
// requeued by the broker instead.
func (c *Consumer) redeliver(ctx context.Context, msg amqp.Delivery, count int) {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[RedeliveryHeader] = int32(count)

	err := c.republish(ctx, amqp.Publishing{
		Headers:       headers,
		ContentType:   msg.ContentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: msg.CorrelationId,
		MessageId:     msg.MessageId,
		Timestamp:     msg.Timestamp,
		Body:          msg.Body,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("queue", c.queueName).Msg("failed to redeliver event, requeueing")
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func redeliveryCount(msg amqp.Delivery) int {
	switch v := msg.Headers[RedeliveryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
