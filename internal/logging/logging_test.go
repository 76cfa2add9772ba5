package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "")

	logger.Info("prediction complete", "locality", "Tlalpan")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "prediction complete", entry["msg"])
	assert.Equal(t, "Tlalpan", entry["locality"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "text")

	logger.Info("archived forecast", "observations", 16)

	assert.Contains(t, buf.String(), "msg=\"archived forecast\"")
	assert.Contains(t, buf.String(), "observations=16")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.False(t, strings.Contains(out, "dropped"))
	assert.True(t, strings.Contains(out, "kept"))
}
