package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// setupProject creates an isolated project directory with a config declaring
// a 4-dimensional "minilm" model tag, and makes it the working directory.
func setupProject(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	cfg := fmt.Sprintf(`version: 1
data_dir: %s
models:
  minilm:
    dimensions: 4
`, filepath.Join(tmpDir, "data"))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".cartrita-hub.yaml"), []byte(cfg), 0o644))

	chdir(t, tmpDir)
	return tmpDir
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
}

// runCmd executes a command with captured output.
func runCmd(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// mustUpsert writes one record through the upsert command.
func mustUpsert(t *testing.T, id, text, vector string) {
	t.Helper()
	out, err := runCmd(newUpsertCmd(), id, "--model", "minilm", "--text", text, "--vector", vector)
	require.NoError(t, err, out)
}
