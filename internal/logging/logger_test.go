// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestCtxAddsCorrelationAndReference(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithReference(ctx, "M1")
	Ctx(ctx).Info().Msg("hello")

	entry := decodeLine(t, buf)
	assert.Equal(t, "abc12345", entry["correlation_id"])
	assert.Equal(t, "M1", entry["reference"])
	assert.Equal(t, "hello", entry["message"])
}

func TestNewCorrelationID(t *testing.T) {
	a, b := NewCorrelationID(), NewCorrelationID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}

func TestSlogLoggerWritesToZerolog(t *testing.T) {
	buf := captureGlobal(t)

	NewSlogLogger().WithGroup("svc").Info("service restarted", "name", "sync-manager", "attempt", 2)

	entry := decodeLine(t, buf)
	assert.Equal(t, "service restarted", entry["message"])
	assert.Equal(t, "sync-manager", entry["svc.name"])
	assert.EqualValues(t, 2, entry["svc.attempt"])
}

func TestWatermillAdapter(t *testing.T) {
	buf := captureGlobal(t)

	adapter := NewWatermillAdapter().With(watermill.LogFields{"topic": "sync.outcome"})
	adapter.Error("publish failed", errors.New("boom"), watermill.LogFields{"uuid": "u1"})

	entry := decodeLine(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "sync.outcome", entry["topic"])
	assert.Equal(t, "u1", entry["uuid"])
	assert.Equal(t, "events", entry["component"])
}

func TestSlogLevelMapping(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelInfo + 2, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
		{slog.LevelError + 4, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toZerolog(tt.in), tt.in.String())
	}
}

func TestSlogNestedGroupAttrs(t *testing.T) {
	buf := captureGlobal(t)

	NewSlogLogger().
		With("supervisor", "meterline").
		Warn("backoff", slog.Group("failure", slog.Int("count", 5), slog.Duration("backoff", 0)))

	entry := decodeLine(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "meterline", entry["supervisor"])
	assert.EqualValues(t, 5, entry["failure.count"])
}
