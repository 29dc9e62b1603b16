package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/rentora/rentora-backend/pkg/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStock(t *testing.T) {
	err := InsufficientStock(3, 1)

	assert.Equal(t, "INSUFFICIENT_STOCK", err.Code)
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, map[string]string{"requested": "3", "available": "1"}, err.Details)
	assert.True(t, Is(err, ErrInsufficientStock))
	assert.False(t, Is(err, ErrConflict))
}

func TestPreconditionFailed(t *testing.T) {
	err := PreconditionFailedWithKey("inventory.shrink_below_allocated", map[string]string{"held": "4", "target": "2"})

	assert.Equal(t, http.StatusPreconditionFailed, err.StatusCode)
	assert.Contains(t, err.Message, "Cannot shrink below units currently allocated")
	assert.True(t, Is(err, ErrPreconditionFailed))

	ctx := i18n.WithLocale(context.Background(), i18n.LocaleGerman)
	assert.Contains(t, err.Localize(ctx), "4 Einheiten sind vermietet oder in Wartung")
}

func TestCode_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("allocate: %w", NotFound("item"))

	assert.Equal(t, "NOT_FOUND", Code(wrapped))
	assert.Equal(t, "", Code(stderrors.New("plain")))

	var appErr *AppError
	require.True(t, As(wrapped, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
}
