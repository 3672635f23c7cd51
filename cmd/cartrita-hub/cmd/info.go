package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/output"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show per-model storage and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			h, cfg, err := openHub()
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			stats, err := h.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out.Statusf("", "Data directory: %s", cfg.DataDir)
			out.Newline()

			if len(stats) == 0 {
				out.Status("", "No records stored yet")
				return nil
			}

			header := []string{"MODEL", "RECORDS", "INDEX", "VECTORS", "ORPHANS", "LEXICAL DOCS"}
			rows := make([][]string, 0, len(stats))
			for _, ts := range stats {
				state := "ready"
				if !ts.IndexReady {
					state = "rebuilding"
				}
				rows = append(rows, []string{
					ts.ModelTag,
					fmt.Sprintf("%d", ts.Records),
					state,
					fmt.Sprintf("%d", ts.IndexCount),
					fmt.Sprintf("%d", ts.IndexOrphans),
					fmt.Sprintf("%d", ts.LexicalDocs),
				})
			}
			out.Table(header, rows)
			return nil
		},
	}

	return cmd
}
