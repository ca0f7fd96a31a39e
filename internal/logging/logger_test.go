package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})

	t.Run("levels", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug msg")
		assert.Contains(t, buf.String(), "debug msg")
	})

	t.Run("dynamic level", func(t *testing.T) {
		logger.SetLevel(LevelError)
		defer logger.SetLevel(LevelDebug)
		assert.Equal(t, LevelError, logger.GetLevel())

		buf.Reset()
		logger.Info("should not appear")
		assert.Zero(t, buf.Len())
	})

	t.Run("component and attrs", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("session").With("filter", "f-1").Info("installed")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "session", entry["component"])
		assert.Equal(t, "f-1", entry["filter"])
		assert.Equal(t, "installed", entry["msg"])
	})

	t.Run("text format", func(t *testing.T) {
		var text bytes.Buffer
		New(Config{Level: LevelInfo, Output: &text}).Warn("hello", "k", "v")
		assert.Contains(t, text.String(), "level=WARN")
		assert.Contains(t, text.String(), "k=v")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "loud", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("dropped") })
}
