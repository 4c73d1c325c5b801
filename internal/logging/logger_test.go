package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		" INFO ":  INFO,
		"warning": WARN,
		"warn":    WARN,
		"error":   ERROR,
		"":        INFO,
		"bogus":   INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "%q", in)
	}
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Config{Level: WARN, JSONFormat: true, Console: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	l.With("component", "test").Warn("shown", "n", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "test", line["component"])
	assert.Equal(t, float64(1), line["n"])
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kgraph.log")
	l, err := NewLogger(Config{Level: DEBUG, OutputFile: path, Quiet: true})
	require.NoError(t, err)

	l.Debug("written to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestInitialize_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	require.NoError(t, Initialize(Config{Level: DEBUG, Console: &buf}))
	t.Cleanup(func() { Close() })

	slog.Default().Debug("via default")
	assert.Contains(t, buf.String(), "via default")
	assert.True(t, IsDebugEnabled())
	assert.Empty(t, GetLogFilePath())
}
