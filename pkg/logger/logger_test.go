package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ScopedFields(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("inventory-service", &buf).
		WithComponent("availability_cache").
		ForItem("item-1").
		Warn().Msg("availability cache read failed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "inventory-service", line["service"])
	assert.Equal(t, "availability_cache", line["component"])
	assert.Equal(t, "item-1", line["item_id"])
	assert.Equal(t, "warn", line["level"])
}

func TestNew_LevelPerEnvironment(t *testing.T) {
	assert.Equal(t, "info", New("inventory-service", "production").GetLevel().String())
	assert.Equal(t, "debug", New("inventory-service", "test").GetLevel().String())
	assert.Equal(t, "debug", New("inventory-service", "development").GetLevel().String())
}
