package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Enabled(t *testing.T) {
	assert.False(t, Options{}.Enabled())
	assert.True(t, Options{CPUPath: "cpu.prof"}.Enabled())
	assert.True(t, Options{HeapPath: "heap.prof"}.Enabled())
}

func TestSession_CapturesCPUProfile(t *testing.T) {
	// Given: a session with a CPU profile path
	path := filepath.Join(t.TempDir(), "cpu.prof")
	s, err := Start(Options{CPUPath: path})
	require.NoError(t, err)

	// When: some work runs and the session stops
	sum := 0
	for i := 0; i < 1_000_000; i++ {
		sum += i
	}
	_ = sum
	require.NoError(t, s.Stop())

	// Then: a non-empty profile artifact exists
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_WritesHeapProfileOnStop(t *testing.T) {
	// Given: a session with only a heap profile path
	path := filepath.Join(t.TempDir(), "heap.prof")
	s, err := Start(Options{HeapPath: path})
	require.NoError(t, err)

	// Then: the artifact appears only after Stop
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
	require.NoError(t, s.Stop())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_NilStopIsSafe(t *testing.T) {
	var s *Session
	require.NoError(t, s.Stop())
}

func TestStart_BadPathFails(t *testing.T) {
	_, err := Start(Options{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.prof")})
	require.Error(t, err)
}
