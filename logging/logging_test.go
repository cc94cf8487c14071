package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "production", "")

	l.Info("chain finished", "error", errors.New("boom"))
	l.Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "chain finished", line["msg"])
	assert.Equal(t, "boom", line["err"])
	assert.NotContains(t, line, "source")
}

func TestNewLogger_DevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "dev", "debug")

	l.Debug("visible", "node", "ask")

	out := buf.String()
	assert.Contains(t, out, "msg=visible")
	assert.Contains(t, out, "node=ask")
	assert.Contains(t, out, "source=")
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() { NewNop().Error("dropped") })
}

func TestTee(t *testing.T) {
	var text, jsonOut bytes.Buffer
	l := slog.New(Tee(
		slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewJSONHandler(&jsonOut, nil),
	)).With("chain", "research")

	l.Debug("only text")
	l.Info("both")

	assert.Contains(t, text.String(), "only text")
	assert.Contains(t, text.String(), "chain=research")
	assert.NotContains(t, jsonOut.String(), "only text")

	var line map[string]any
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &line))
	assert.Equal(t, "both", line["msg"])
	assert.Equal(t, "research", line["chain"])
}
