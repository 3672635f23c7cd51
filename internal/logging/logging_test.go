package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFromString("debug"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("WARN"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("warning"))
	assert.Equal(t, slog.LevelError, LevelFromString("error"))
	assert.Equal(t, slog.LevelInfo, LevelFromString("unknown"))
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: logging configured to a file without stderr echo
	path := filepath.Join(t.TempDir(), "logs", "hub.log")
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path})
	require.NoError(t, err)

	// When: an event is logged
	logger.Info("upsert_complete", slog.String("id", "doc1"))
	cleanup()

	// Then: the file holds one JSON line with the event fields
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "upsert_complete", entry["msg"])
	assert.Equal(t, "doc1", entry["id"])
}

func TestSetup_LevelFiltersEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Debug("suppressed_event")
	logger.Warn("surfaced_event")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed_event")
	assert.Contains(t, string(data), "surfaced_event")
}

func TestRotatingWriter_RotatesAndKeepsHistory(t *testing.T) {
	// Given: a writer whose size limit forces rotation on every write
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.log")
	w, err := NewRotatingWriter(path, 0, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: three generations of content are written
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("third\n"))
	require.NoError(t, err)

	// Then: the newest content is live and older generations shifted back
	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "third\n", string(current))

	rotated1, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(rotated1))

	rotated2, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(rotated2))
}

func TestRotatingWriter_PrunesBeyondMaxFiles(t *testing.T) {
	// Given: a single kept rotation
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.log")
	w, err := NewRotatingWriter(path, 0, 1)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for _, line := range []string{"a\n", "b\n", "c\n"} {
		_, err = w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Then: only hub.log and hub.log.1 remain
	_, err = os.Stat(path + ".1")
	require.NoError(t, err)
	_, err = os.Stat(path + ".2")
	assert.True(t, os.IsNotExist(err))
}
