package consumers

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/actor"
	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReleaser struct {
	calls  []repository.ConsumerRef
	actors []string
	errFor map[string]error
}

func (f *fakeReleaser) ReleaseConsumer(ctx context.Context, consumer repository.ConsumerRef) (*service.ReleaseResult, error) {
	f.calls = append(f.calls, consumer)
	f.actors = append(f.actors, actor.FromContext(ctx).Ref())
	if err := f.errFor[consumer.String()]; err != nil {
		return nil, err
	}
	return &service.ReleaseResult{Released: []string{"u-" + consumer.Ref}}, nil
}

func handlers(t *testing.T, r ConsumerReleaser) map[string]messaging.MessageHandler {
	t.Helper()
	out := map[string]messaging.MessageHandler{}
	newWorkflowEventConsumer(r, logger.Nop()).register(func(eventType string, h messaging.MessageHandler) {
		out[eventType] = h
	})
	return out
}

func event(t *testing.T, eventType string, data any) *messaging.Event {
	t.Helper()
	e, err := messaging.NewEvent(eventType, "rental-service", "corr-1", data)
	require.NoError(t, err)
	return e
}

func TestWorkflowConsumer_Registers(t *testing.T) {
	h := handlers(t, &fakeReleaser{})
	for _, eventType := range []string{
		messaging.EventCustomerDeleted,
		messaging.EventRentalCancelled,
		messaging.EventSaleCancelled,
		messaging.EventServiceCancelled,
	} {
		assert.Contains(t, h, eventType)
	}
}

func TestWorkflowConsumer_Cancelled(t *testing.T) {
	tests := []struct {
		eventType string
		want      repository.ConsumerType
	}{
		{messaging.EventRentalCancelled, repository.ConsumerRental},
		{messaging.EventSaleCancelled, repository.ConsumerSale},
		{messaging.EventServiceCancelled, repository.ConsumerService},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			r := &fakeReleaser{}
			h := handlers(t, r)

			err := h[tt.eventType](context.Background(), event(t, tt.eventType, messaging.WorkflowCancelledEvent{Ref: "R-9", Reason: "customer request"}))
			require.NoError(t, err)
			require.Len(t, r.calls, 1)
			assert.Equal(t, repository.ConsumerRef{Type: tt.want, Ref: "R-9"}, r.calls[0])
			assert.Equal(t, "rental-service@system.rentora.local", r.actors[0])
		})
	}
}

func TestWorkflowConsumer_CustomerDeleted(t *testing.T) {
	r := &fakeReleaser{}
	h := handlers(t, r)

	err := h[messaging.EventCustomerDeleted](context.Background(), event(t, messaging.EventCustomerDeleted, messaging.CustomerDeletedEvent{
		CustomerID: "c-1",
		ConsumerRefs: []messaging.ConsumerRef{
			{Type: "rental", Ref: "R-1"},
			{Type: "sale", Ref: "S-1"},
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, []repository.ConsumerRef{
		{Type: repository.ConsumerRental, Ref: "R-1"},
		{Type: repository.ConsumerSale, Ref: "S-1"},
	}, r.calls)
}

func TestWorkflowConsumer_Errors(t *testing.T) {
	t.Run("invalid refs do not block the others", func(t *testing.T) {
		r := &fakeReleaser{errFor: map[string]error{
			"lease:L-1": errors.FieldValidation("consumer.type", "must be one of: rental, sale, service"),
		}}
		h := handlers(t, r)
		err := h[messaging.EventCustomerDeleted](context.Background(), event(t, messaging.EventCustomerDeleted, messaging.CustomerDeletedEvent{
			ConsumerRefs: []messaging.ConsumerRef{{Type: "lease", Ref: "L-1"}, {Type: "rental", Ref: "R-2"}},
		}))
		assert.Equal(t, "VALIDATION_ERROR", errors.Code(err), "the messaging consumer drops it")
		assert.Len(t, r.calls, 2, "later refs are still released")
	})

	t.Run("other errors are returned for redelivery", func(t *testing.T) {
		r := &fakeReleaser{errFor: map[string]error{"rental:R-3": stderrors.New("database is locked")}}
		h := handlers(t, r)
		err := h[messaging.EventRentalCancelled](context.Background(), event(t, messaging.EventRentalCancelled, messaging.WorkflowCancelledEvent{Ref: "R-3"}))
		require.Error(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		r := &fakeReleaser{}
		h := handlers(t, r)
		bad := event(t, messaging.EventRentalCancelled, nil)
		bad.Data = []byte(`{"ref": 7}`)
		err := h[messaging.EventRentalCancelled](context.Background(), bad)
		assert.ErrorIs(t, err, messaging.ErrMalformedEvent)
		assert.Empty(t, r.calls)
	})
}
