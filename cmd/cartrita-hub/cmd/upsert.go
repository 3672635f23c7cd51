package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/ingest"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/output"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/pipeline"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// upsertRecord is the JSON shape accepted by --file.
type upsertRecord struct {
	ID       string            `json:"id"`
	ModelTag string            `json:"model_tag"`
	Text     string            `json:"text"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newUpsertCmd() *cobra.Command {
	var (
		modelTag   string
		text       string
		textFile   string
		vectorSpec string
		batchFile  string
		jobs       int
	)

	cmd := &cobra.Command{
		Use:   "upsert [id]",
		Short: "Insert or update embedding records",
		Long: `Insert or update embedding records.

Unchanged content is detected by hash and skipped without touching
the indexes or bumping the record version.

Examples:
  cartrita-hub upsert doc1 --model minilm --text "hello world" --vector 0.1,0.2,0.3
  cartrita-hub upsert doc2 --model minilm --text-file body.txt --vector 0.4,0.5,0.6
  cartrita-hub upsert --file records.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			var records []upsertRecord
			if batchFile != "" {
				data, err := os.ReadFile(batchFile)
				if err != nil {
					return fmt.Errorf("read batch file: %w", err)
				}
				if err := json.Unmarshal(data, &records); err != nil {
					return fmt.Errorf("parse batch file: %w", err)
				}
			} else {
				if len(args) == 0 {
					return fmt.Errorf("record id is required (or use --file)")
				}
				if textFile != "" {
					data, err := os.ReadFile(textFile)
					if err != nil {
						return fmt.Errorf("read text file: %w", err)
					}
					text = string(data)
				}
				vector, err := parseVector(vectorSpec)
				if err != nil {
					return err
				}
				records = []upsertRecord{{
					ID:       args[0],
					ModelTag: modelTag,
					Text:     text,
					Vector:   vector,
				}}
			}

			return runUpsert(cmd.Context(), out, records, jobs)
		},
	}

	cmd.Flags().StringVarP(&modelTag, "model", "m", "", "Model tag for the record")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Record text content")
	cmd.Flags().StringVar(&textFile, "text-file", "", "Read text content from a file")
	cmd.Flags().StringVar(&vectorSpec, "vector", "", "Comma-separated embedding vector")
	cmd.Flags().StringVarP(&batchFile, "file", "f", "", "JSON file with an array of records")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Concurrent upserts for batch files (default 4)")

	return cmd
}

func runUpsert(ctx context.Context, out *output.Writer, records []upsertRecord, jobs int) error {
	h, _, err := openHub()
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	reqs := make([]pipeline.UpsertRequest, 0, len(records))
	for _, r := range records {
		reqs = append(reqs, pipeline.UpsertRequest{
			ID:       r.ID,
			ModelTag: r.ModelTag,
			Text:     r.Text,
			Vector:   r.Vector,
			Metadata: metadataFromStrings(r.Metadata),
		})
	}

	in, err := ingest.New(h, ingest.Config{Workers: jobs})
	if err != nil {
		return err
	}
	results, err := in.Run(ctx, reqs)
	if err != nil {
		return fmt.Errorf("batch ingest: %w", err)
	}

	for _, res := range results {
		if res.Err != nil {
			out.Statusf("", "%s: failed (%v)", res.ID, res.Err)
			continue
		}
		out.Statusf("", "%s: %s (version %d)", res.ID, res.Status, res.Version)
	}

	snap := in.Progress().Snapshot()
	out.Successf("%d inserted, %d updated, %d skipped, %d failed",
		snap.Inserted, snap.Updated, snap.Skipped, snap.Failed)
	if snap.Failed > 0 {
		return fmt.Errorf("%d of %d records failed", snap.Failed, snap.Total)
	}
	return nil
}

func metadataFromStrings(m map[string]string) map[string]store.MetadataValue {
	if len(m) == 0 {
		return nil
	}
	md := make(map[string]store.MetadataValue, len(m))
	for k, v := range m {
		md[k] = store.StringValue(v)
	}
	return md
}

// parseVector parses a comma-separated float list.
func parseVector(spec string) ([]float32, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	parts := strings.Split(spec, ",")
	vector := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vector = append(vector, float32(f))
	}
	return vector, nil
}
