package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildCmd_WaitRebuildsAndServes(t *testing.T) {
	setupProject(t)
	mustUpsert(t, "doc1", "alpha content", "1,0,0,0")

	// When: a synchronous rebuild runs
	out, err := runCmd(newRebuildCmd(), "--model", "minilm", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebuild complete")

	// Then: the rebuilt index still serves the record
	out, err = runCmd(newQueryCmd(), "--model", "minilm", "--vector", "1,0,0,0", "--vector-only")
	require.NoError(t, err)
	assert.Contains(t, out, "doc1")
}

func TestRebuildCmd_AsyncReportsStarted(t *testing.T) {
	setupProject(t)
	mustUpsert(t, "doc1", "alpha content", "1,0,0,0")

	out, err := runCmd(newRebuildCmd(), "--model", "minilm")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebuild started for minilm")
}
