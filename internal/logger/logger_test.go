package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_ReleaseSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, "release")

	l.Debug("hidden")
	l.Info("visible", "document_id", 7)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, float64(7), entry["document_id"])
	assert.NotContains(t, entry, "source")
}

func TestNewWithWriter_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, "debug")
	l.Debug("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Contains(t, entry, "source")
}
