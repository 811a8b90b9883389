package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", "json")
	require.NoError(t, err)

	log.Info().Str("output", "DP-1").Msg("bar created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "bar created", line["message"])
	assert.Equal(t, "DP-1", line["output"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "", "console")
	require.NoError(t, err)

	log.Info().Msg("hello")

	out := buf.String()
	assert.True(t, strings.Contains(out, "INF"), "expected console level tag in %q", out)
	assert.Error(t, json.Unmarshal(buf.Bytes(), &map[string]any{}))
}

func TestBadLevelRejected(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(&buf, "verbose", "json")
	assert.ErrorContains(t, err, "verbose")
}
