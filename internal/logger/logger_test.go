package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter("info", "json", &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Error("fetch failed", zap.String("url", "http://example.com/raw-file/default/a.cmake"))
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "fetch failed", entry["msg"])
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "http://example.com/raw-file/default/a.cmake", entry["url"])
	assert.Contains(t, entry, "timestamp")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter("debug", "console", &buf)
	require.NoError(t, err)

	log.Debug("building manifest", zap.Int("files", 5))
	require.NoError(t, log.Sync())

	assert.Contains(t, buf.String(), "building manifest")
	assert.Contains(t, buf.String(), `"files": 5`)
}

func TestInvalidFormat(t *testing.T) {
	_, err := NewWithWriter("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
