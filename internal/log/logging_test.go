package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestLevelFilterSplitsStreams(t *testing.T) {
	var out, errOut bytes.Buffer

	logger := slog.New(MultiHandler{hs: []slog.Handler{
		LevelFilter{
			pass: func(l slog.Level) bool { return l < slog.LevelError },
			h:    slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}),
		},
		LevelFilter{
			pass: func(l slog.Level) bool { return l >= slog.LevelError },
			h:    slog.NewTextHandler(&errOut, &slog.HandlerOptions{Level: slog.LevelError}),
		},
	}})

	logger.Info("normal")
	logger.Error("broken")

	assert.Contains(t, out.String(), "normal")
	assert.NotContains(t, out.String(), "broken")
	assert.Contains(t, errOut.String(), "broken")
	assert.NotContains(t, errOut.String(), "normal")
}

func TestMultiHandlerEnabled(t *testing.T) {
	h := MultiHandler{hs: []slog.Handler{
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestRawLogger(t *testing.T) {
	var buf bytes.Buffer
	r := NewRaw(&buf)

	r.Log(true, []byte{0xde, 0xad})
	line := buf.String()
	require.Contains(t, line, "H->D")
	assert.Contains(t, line, "2 bytes")
	assert.Contains(t, line, "de ad")

	buf.Reset()
	r.Log(false, []byte{0x01})
	assert.Contains(t, buf.String(), "D->H")

	buf.Reset()
	r.Log(true, nil)
	assert.Empty(t, buf.String())

	// nil writer must be a safe no-op
	NewRaw(nil).Log(true, []byte{0x00})
}
