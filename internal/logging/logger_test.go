package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	assert.Equal(t, "warn", GetLogLevel())

	t.Setenv(EnvLogLevel, "debug")
	assert.Equal(t, "debug", GetLogLevel())
}

func TestNewLoggerLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	var buf bytes.Buffer

	logger := NewLogger("tangle", "", &buf)
	assert.Equal(t, hclog.Error, logger.GetLevel())
	logger.Warn("hidden")
	assert.Empty(t, buf.String())

	logger = NewLogger("tangle", "trace", &buf)
	logger.Named("compiler").Trace("visible", "line", 3)
	assert.Contains(t, buf.String(), "tangle.compiler: visible: line=3")
}

func TestNewLoggerJSON(t *testing.T) {
	t.Setenv(EnvJSONLog, "1")
	var buf bytes.Buffer

	NewLogger("tangle", "info", &buf).Info("connected", "peer", "AA:BB")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "connected", entry["@message"])
	assert.Equal(t, "AA:BB", entry["peer"])
	assert.Equal(t, "tangle", entry["@module"])
}
