package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":     slog.LevelDebug,
		" WARNING ": slog.LevelWarn,
		"warn":      slog.LevelWarn,
		"error":     slog.LevelError,
		"":          slog.LevelInfo,
		"verbose":   slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")
	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
	assert.False(t, Default().Enabled(context.Background(), slog.LevelDebug))
}

func TestWithCallTagsEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "debug").WithCall("CA123").Debug("ivr: prompt", "step", "capture_date")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "CA123", record["call_sid"])
	assert.Equal(t, "capture_date", record["step"])
	assert.Equal(t, "DEBUG", record["level"])
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "********3210", MaskPhone("+91 98765-43210"))
	assert.Equal(t, "****", MaskPhone("1234"))
	assert.Empty(t, MaskPhone(""))
}
