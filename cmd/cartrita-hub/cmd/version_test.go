package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd_Text(t *testing.T) {
	out, err := runCmd(newVersionCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "cartrita-hub")
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := runCmd(newVersionCmd(), "--json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}
