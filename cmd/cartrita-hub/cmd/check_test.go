package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCmd_CleanStore(t *testing.T) {
	setupProject(t)
	mustUpsert(t, "doc1", "alpha content", "1,0,0,0")
	mustUpsert(t, "doc2", "beta content", "0,1,0,0")

	// When: a consistency check runs over aligned stores
	out, err := runCmd(newCheckCmd(), "--model", "minilm")
	require.NoError(t, err)

	// Then: nothing is flagged
	assert.Contains(t, out, "no inconsistencies")
	assert.Contains(t, out, "2 records checked")
}
