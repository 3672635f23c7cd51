package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertCmd_InsertsRecord(t *testing.T) {
	setupProject(t)

	// When: a record is upserted
	out, err := runCmd(newUpsertCmd(), "doc1",
		"--model", "minilm", "--text", "hello world", "--vector", "1,0,0,0")
	require.NoError(t, err)

	// Then: the result and summary report the insert
	assert.Contains(t, out, "doc1: inserted (version 1)")
	assert.Contains(t, out, "1 inserted, 0 updated, 0 skipped, 0 failed")
}

func TestUpsertCmd_SkipsUnchangedContent(t *testing.T) {
	setupProject(t)
	mustUpsert(t, "doc1", "stable content", "1,0,0,0")

	// When: the identical content is sent again
	out, err := runCmd(newUpsertCmd(), "doc1",
		"--model", "minilm", "--text", "stable content", "--vector", "1,0,0,0")
	require.NoError(t, err)

	// Then: the record is skipped at its original version
	assert.Contains(t, out, "doc1: skipped (version 1)")
	assert.Contains(t, out, "0 inserted, 0 updated, 1 skipped")
}

func TestUpsertCmd_BatchFile(t *testing.T) {
	tmpDir := setupProject(t)

	// Given: a JSON batch of three records
	batch := `[
  {"id": "a", "model_tag": "minilm", "text": "first", "vector": [1, 0, 0, 0]},
  {"id": "b", "model_tag": "minilm", "text": "second", "vector": [0, 1, 0, 0]},
  {"id": "c", "model_tag": "minilm", "text": "third", "vector": [0, 0, 1, 0]}
]`
	path := filepath.Join(tmpDir, "records.json")
	require.NoError(t, os.WriteFile(path, []byte(batch), 0o644))

	// When: the batch is ingested with two workers
	out, err := runCmd(newUpsertCmd(), "--file", path, "--jobs", "2")
	require.NoError(t, err)

	// Then: all three records land
	assert.Contains(t, out, "3 inserted, 0 updated, 0 skipped, 0 failed")
}

func TestUpsertCmd_RequiresID(t *testing.T) {
	setupProject(t)

	_, err := runCmd(newUpsertCmd(), "--model", "minilm", "--text", "x", "--vector", "1,0,0,0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record id is required")
}

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []float32
		wantErr bool
	}{
		{name: "simple", spec: "1,0.5,-2", want: []float32{1, 0.5, -2}},
		{name: "spaces tolerated", spec: " 1 , 2 ", want: []float32{1, 2}},
		{name: "empty is nil", spec: "", want: nil},
		{name: "garbage component", spec: "1,abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVector(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
