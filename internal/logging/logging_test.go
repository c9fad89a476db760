package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewTextFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(&Config{Level: "warn", Format: FormatText}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "project", "p")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "project=p")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(&Config{Level: "debug", Format: FormatJSON}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.With("component", "test").Debug("hello")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "test", rec["component"])
}

func TestNewWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "devpulse.log")
	logger, closer, err := New(&Config{Level: "info", Format: FormatText, File: path}, &buf)
	require.NoError(t, err)

	logger.With("component", "scheduler").Info("job ran", "job", "sweep")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "job=sweep")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec))
	assert.Equal(t, "job ran", rec["msg"])
	assert.Equal(t, "scheduler", rec["component"])
	assert.Equal(t, "sweep", rec["job"])
}

func TestValidateRejectsBadFormat(t *testing.T) {
	_, _, err := New(&Config{Level: "info", Format: "xml"}, nil)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DEVPULSE_LOG_LEVEL", "debug")
	t.Setenv("DEVPULSE_LOG_FORMAT", "JSON")
	cfg := DefaultConfig()
	ApplyEnv(cfg)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Empty(t, cfg.File)
}
