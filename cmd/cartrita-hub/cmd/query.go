package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/output"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/search"
)

type queryOptions struct {
	modelTag      string
	vectorSpec    string
	limit         int
	vectorWeight  float64
	lexicalWeight float64
	vectorOnly    bool
	lexicalOnly   bool
	format        string
	showText      bool
}

func newQueryCmd() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Run a hybrid similarity search",
		Long: `Run a hybrid similarity search.

Vector and lexical results are fused with a weighted score. Provide a
query vector with --vector, query text as an argument, or both.

Examples:
  cartrita-hub query "error handling" --model minilm --vector 0.1,0.2,0.3
  cartrita-hub query "error handling" --model minilm --lexical-only
  cartrita-hub query --model minilm --vector 0.1,0.2,0.3 --vector-only -n 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) > 0 {
				text = args[0]
			}
			return runQuery(cmd, text, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.modelTag, "model", "m", "", "Model tag to query")
	cmd.Flags().StringVar(&opts.vectorSpec, "vector", "", "Comma-separated query vector")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.vectorWeight, "vector-weight", 0, "Vector score weight (default from config)")
	cmd.Flags().Float64Var(&opts.lexicalWeight, "lexical-weight", 0, "Lexical score weight (default from config)")
	cmd.Flags().BoolVar(&opts.vectorOnly, "vector-only", false, "Skip the lexical index")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Skip the vector index")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&opts.showText, "show-text", false, "Include record text in results")

	return cmd
}

func runQuery(cmd *cobra.Command, text string, opts *queryOptions) error {
	out := output.New(cmd.OutOrStdout())

	vector, err := parseVector(opts.vectorSpec)
	if err != nil {
		return err
	}

	h, _, err := openHub()
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	queryOpts := search.QueryOptions{
		K:           opts.limit,
		VectorOnly:  opts.vectorOnly,
		LexicalOnly: opts.lexicalOnly,
	}
	if opts.vectorWeight != 0 || opts.lexicalWeight != 0 {
		queryOpts.Weights = &search.Weights{
			Vector:  opts.vectorWeight,
			Lexical: opts.lexicalWeight,
		}
	}

	results, err := h.Query(cmd.Context(), opts.modelTag, vector, text, queryOpts)
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		return printQueryJSON(cmd, results)
	case "text":
		printQueryText(out, results, opts.showText)
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected text or json)", opts.format)
	}
}

func printQueryJSON(cmd *cobra.Command, results []*search.QueryResult) error {
	type jsonResult struct {
		ID                string  `json:"id"`
		Score             float64 `json:"score"`
		VectorSimilarity  float64 `json:"vector_similarity"`
		LexicalScore      float64 `json:"lexical_score"`
		InBothLists       bool    `json:"in_both_lists"`
		Text              string  `json:"text,omitempty"`
	}
	payload := make([]jsonResult, 0, len(results))
	for _, r := range results {
		jr := jsonResult{
			ID:               r.ID,
			Score:            r.Score,
			VectorSimilarity: r.VectorSimilarity,
			LexicalScore:     r.LexicalScore,
			InBothLists:      r.InBothLists,
		}
		if r.Record != nil {
			jr.Text = r.Record.Text
		}
		payload = append(payload, jr)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func printQueryText(out *output.Writer, results []*search.QueryResult, showText bool) {
	if len(results) == 0 {
		out.Status("", "No results found")
		return
	}

	header := []string{"RANK", "ID", "SCORE", "VECTOR", "LEXICAL"}
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			r.ID,
			fmt.Sprintf("%.4f", r.Score),
			fmt.Sprintf("%.4f", r.VectorSimilarity),
			fmt.Sprintf("%.4f", r.LexicalScore),
		})
	}
	out.Table(header, rows)

	if showText {
		out.Newline()
		for _, r := range results {
			if r.Record == nil {
				continue
			}
			out.Statusf("", "%s: %s", r.ID, truncateText(r.Record.Text, 120))
		}
	}
}

func truncateText(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
