package messaging

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAcker struct {
	acked    int
	nacked   int
	rejected int
	requeue  bool
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error { a.acked++; return nil }
func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}
func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	a.rejected++
	a.requeue = requeue
	return nil
}

func delivery(t *testing.T, acker amqp.Acknowledger, eventType string, data any, headers amqp.Table) amqp.Delivery {
	t.Helper()
	event, err := NewEvent(eventType, "rental-service", "corr-1", data)
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: acker, Body: body, Headers: headers}
}

type republished struct {
	msgs []amqp.Publishing
	err  error
}

func (r *republished) send(_ context.Context, msg amqp.Publishing) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func newTestConsumer(maxRedeliveries int) (*Consumer, *republished) {
	out := &republished{}
	c := &Consumer{
		queueName:       "test",
		handlers:        map[string]MessageHandler{},
		maxRedeliveries: maxRedeliveries,
		republish:       out.send,
		logger:          logger.Nop(),
	}
	return c, out
}

func failWith(err error) MessageHandler {
	return func(context.Context, *Event) error { return err }
}

func TestConsumer_HandleMessage(t *testing.T) {
	t.Run("handler success acks", func(t *testing.T) {
		c, out := newTestConsumer(3)
		var got WorkflowCancelledEvent
		var corr string
		c.RegisterHandler(EventRentalCancelled, func(ctx context.Context, e *Event) error {
			corr = CorrelationID(ctx)
			return e.UnmarshalData(&got)
		})
		acker := &recordingAcker{}

		c.handleMessage(context.Background(), delivery(t, acker, EventRentalCancelled, WorkflowCancelledEvent{Ref: "R-1"}, nil))

		assert.Equal(t, 1, acker.acked)
		assert.Equal(t, "R-1", got.Ref)
		assert.Equal(t, "corr-1", corr)
		assert.Empty(t, out.msgs)
	})

	t.Run("unknown type acks", func(t *testing.T) {
		c, _ := newTestConsumer(3)
		acker := &recordingAcker{}

		c.handleMessage(context.Background(), delivery(t, acker, "rental.created", struct{}{}, nil))

		assert.Equal(t, 1, acker.acked)
	})

	t.Run("undecodable body dead-letters", func(t *testing.T) {
		c, _ := newTestConsumer(3)
		acker := &recordingAcker{}

		c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: acker, Body: []byte("{")})

		assert.Equal(t, 1, acker.rejected)
		assert.False(t, acker.requeue)
	})

	t.Run("transient failure is redelivered with a raised count", func(t *testing.T) {
		c, out := newTestConsumer(3)
		c.RegisterHandler(EventSaleCancelled, failWith(stderrors.New("db down")))
		acker := &recordingAcker{}
		headers := amqp.Table{RedeliveryHeader: int32(1), "x-trace": "abc"}

		c.handleMessage(context.Background(), delivery(t, acker, EventSaleCancelled, WorkflowCancelledEvent{Ref: "S-1"}, headers))

		assert.Equal(t, 1, acker.acked)
		require.Len(t, out.msgs, 1)
		assert.Equal(t, int32(2), out.msgs[0].Headers[RedeliveryHeader])
		assert.Equal(t, "abc", out.msgs[0].Headers["x-trace"])
		assert.Equal(t, amqp.Persistent, out.msgs[0].DeliveryMode)
	})

	t.Run("transient failure after the limit dead-letters", func(t *testing.T) {
		c, out := newTestConsumer(3)
		c.RegisterHandler(EventSaleCancelled, failWith(errors.New("ITEM_BUSY", "item is busy, try again", 503)))
		acker := &recordingAcker{}
		headers := amqp.Table{RedeliveryHeader: int64(3)}

		c.handleMessage(context.Background(), delivery(t, acker, EventSaleCancelled, WorkflowCancelledEvent{Ref: "S-1"}, headers))

		assert.Equal(t, 1, acker.rejected)
		assert.False(t, acker.requeue)
		assert.Empty(t, out.msgs)
	})

	t.Run("limit comes from the consumer config", func(t *testing.T) {
		c, out := newTestConsumer(1)
		c.RegisterHandler(EventSaleCancelled, failWith(stderrors.New("db down")))
		acker := &recordingAcker{}

		c.handleMessage(context.Background(), delivery(t, acker, EventSaleCancelled, WorkflowCancelledEvent{Ref: "S-1"}, amqp.Table{RedeliveryHeader: int32(1)}))

		assert.Equal(t, 1, acker.rejected)
		assert.Empty(t, out.msgs)
	})

	t.Run("validation failure is dropped", func(t *testing.T) {
		c, out := newTestConsumer(3)
		c.RegisterHandler(EventRentalCancelled, failWith(errors.FieldValidation("consumer.ref", "is required")))
		acker := &recordingAcker{}

		c.handleMessage(context.Background(), delivery(t, acker, EventRentalCancelled, WorkflowCancelledEvent{}, nil))

		assert.Equal(t, 1, acker.acked)
		assert.Zero(t, acker.rejected)
		assert.Empty(t, out.msgs)
	})

	t.Run("malformed data dead-letters without redelivery", func(t *testing.T) {
		c, out := newTestConsumer(3)
		c.RegisterHandler(EventRentalCancelled, func(_ context.Context, e *Event) error {
			var data WorkflowCancelledEvent
			return e.UnmarshalData(&data)
		})
		acker := &recordingAcker{}
		d := delivery(t, acker, EventRentalCancelled, nil, nil)
		d.Body = []byte(`{"id":"e1","type":"rental.cancelled","data":{"ref":7}}`)

		c.handleMessage(context.Background(), d)

		assert.Equal(t, 1, acker.rejected)
		assert.Empty(t, out.msgs)
	})

	t.Run("failed redelivery falls back to requeue", func(t *testing.T) {
		c, out := newTestConsumer(3)
		out.err = stderrors.New("channel closed")
		c.RegisterHandler(EventSaleCancelled, failWith(stderrors.New("db down")))
		acker := &recordingAcker{}

		c.handleMessage(context.Background(), delivery(t, acker, EventSaleCancelled, WorkflowCancelledEvent{Ref: "S-1"}, nil))

		assert.Equal(t, 1, acker.nacked)
		assert.True(t, acker.requeue)
		assert.Zero(t, acker.acked)
	})
}

func TestConsumer_Settle(t *testing.T) {
	c, _ := newTestConsumer(0)
	busy := errors.New("ITEM_BUSY", "item is busy, try again", 503)

	tests := []struct {
		name         string
		err          error
		redeliveries int
		want         settlement
	}{
		{"success", nil, 0, settleAck},
		{"validation", errors.FieldValidation("ref", "is required"), 0, settleDrop},
		{"wrapped validation", fmt.Errorf("release: %w", errors.FieldValidation("ref", "is required")), 5, settleDrop},
		{"malformed", fmt.Errorf("%w: bad", ErrMalformedEvent), 0, settleDeadLetter},
		{"busy first time", busy, 0, settleRedeliver},
		{"busy at default limit", busy, defaultMaxRedeliveries, settleDeadLetter},
		{"not found is retried", errors.NotFound("item"), 1, settleRedeliver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.settle(tt.err, tt.redeliveries))
		})
	}
}
