package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  slog.LevelInfo,
		Format: "json",
		Writer: &buf,
	})

	logger.Info("library opened", "books", 3)

	assert.Contains(t, buf.String(), `"msg":"library opened"`)
	assert.Contains(t, buf.String(), `"books":3`)
}

func TestNew_FormatAutoDetection(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:       slog.LevelInfo,
		Environment: "production",
		Writer:      &buf,
	})

	logger.Info("test")
	assert.Contains(t, buf.String(), `"msg":"test"`)

	buf.Reset()
	logger = New(Config{
		Level:       slog.LevelInfo,
		Environment: "development",
		Writer:      &buf,
	})
	logger.Info("test")
	assert.NotContains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  slog.LevelWarn,
		Format: "json",
		Writer: &buf,
	})

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}
