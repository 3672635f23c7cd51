//go:build ignore

// Package main generates a synthetic record batch for load testing.
// Usage: go run scripts/generate-test-corpus.go -records 10000 -dims 384 -output testdata/bench/records.json
//
// The output is a JSON array consumable by `cartrita-hub upsert --file`.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numRecords = flag.Int("records", 10000, "Number of records to generate")
	dims       = flag.Int("dims", 384, "Vector dimensionality")
	modelTag   = flag.String("model", "minilm", "Model tag stamped on every record")
	outputPath = flag.String("output", "testdata/bench/records.json", "Output file")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

type record struct {
	ID       string            `json:"id"`
	ModelTag string            `json:"model_tag"`
	Text     string            `json:"text"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Word pools for generating varied but overlapping text, so lexical queries
// against the corpus return graded result sets rather than all-or-nothing.
var (
	subjects = []string{
		"the request router", "the session cache", "the batch scheduler",
		"the storage engine", "the query planner", "the index builder",
		"the message broker", "the retry queue", "the token validator",
		"the config loader", "the snapshot writer", "the worker pool",
	}
	verbs = []string{
		"normalizes", "deduplicates", "compresses", "partitions", "replays",
		"serializes", "throttles", "shards", "prunes", "rebalances",
	}
	objects = []string{
		"incoming embedding records", "stale index entries", "retry payloads",
		"tokenized documents", "vector partitions", "content hashes",
		"checkpoint artifacts", "per-key write locks", "candidate rankings",
	}
	qualifiers = []string{
		"under sustained write load", "during background rebuilds",
		"before acknowledging the caller", "without blocking readers",
		"across process restarts", "when the orphan ratio grows",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output directory: %v\n", err)
		os.Exit(1)
	}

	records := make([]record, 0, *numRecords)
	for i := 0; i < *numRecords; i++ {
		records = append(records, record{
			ID:       fmt.Sprintf("bench-%06d", i),
			ModelTag: *modelTag,
			Text:     randomText(rng),
			Vector:   randomUnitVector(rng, *dims),
			Metadata: map[string]string{"source": "synthetic"},
		})
	}

	f, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(records); err != nil {
		fmt.Fprintf(os.Stderr, "encode records: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d records (%d dims, model %s) in %s\n",
		*numRecords, *dims, *modelTag, *outputPath)
}

// randomText composes a few sentences from the word pools.
func randomText(rng *rand.Rand) string {
	sentences := 2 + rng.Intn(3)
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s %s %s %s.",
			subjects[rng.Intn(len(subjects))],
			verbs[rng.Intn(len(verbs))],
			objects[rng.Intn(len(objects))],
			qualifiers[rng.Intn(len(qualifiers))])
	}
	return b.String()
}

// randomUnitVector samples a direction uniformly by normalizing gaussian
// components, matching the distribution of typical embedding outputs.
func randomUnitVector(rng *rand.Rand, dims int) []float32 {
	vec := make([]float64, dims)
	var norm float64
	for i := range vec {
		vec[i] = rng.NormFloat64()
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, dims)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
