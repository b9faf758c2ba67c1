package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bleremote/internal/infra/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestOpenOutputTargets(t *testing.T) {
	w, _, err := openOutput("stdout")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, w)

	w, _, err = openOutput("")
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)

	w, _, err = openOutput("discard")
	require.NoError(t, err)
	assert.Equal(t, io.Discard, w)

	_, _, err = openOutput("/nonexistent/dir/log.txt")
	assert.Error(t, err)
}

func TestNewJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Debug("dropped")
	log.Info("payload sent", "bytes", "0a14")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "payload sent", entry["msg"])
	assert.Equal(t, "0a14", entry["bytes"])
}

func TestForPanelKeepsFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.log")
	_, closer, got, err := ForPanel(config.LoggerConfig{Level: "info", Output: path})
	require.NoError(t, err)
	defer closer()
	assert.Equal(t, path, got)
}

func TestForPanelRedirectsTerminal(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	log, closer, got, err := ForPanel(config.LoggerConfig{Level: "info", Output: "stderr"})
	require.NoError(t, err)
	log.Info("redirected")
	require.NoError(t, closer())

	assert.Equal(t, "panel.log", filepath.Base(got))
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Contains(t, string(data), "redirected")
}
