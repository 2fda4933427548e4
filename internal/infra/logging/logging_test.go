package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aswaq-payments/internal/config"
)

func TestWith_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "user-9")
	With(ctx, base).Info().Msg("hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "trace-1", rec["trace_id"])
	assert.Equal(t, "user-9", rec["purchaser_id"])
	assert.Equal(t, "payments", rec["service"])
	assert.NotContains(t, rec, "session_id")
	assert.Equal(t, "trace-1", TraceID(ctx))
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LogConfig{Level: "chatty", Format: "json"}, false, &buf)
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	l.Debug().Msg("hidden")
	l.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "+971501234567", Redact("+971501234567", true))
	assert.Equal(t, "+971...67", Redact("+971501234567", false))
	assert.Equal(t, "***", Redact("a@b.co", false))
}
