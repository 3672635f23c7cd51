package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/output"
)

func newCheckCmd() *cobra.Command {
	var (
		modelTag string
		repair   bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check index consistency against the record store",
		Long: `Check index consistency against the record store.

The record store is the source of truth. The check reports index
entries with no backing record (orphans) and records missing from an
index. With --repair, orphans are removed and missing entries are
restored from the stored records.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			h, _, err := openHub()
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			result, err := h.CheckConsistency(cmd.Context(), modelTag)
			if err != nil {
				return err
			}

			if result.Consistent() {
				out.Successf("%s: %d records checked, no inconsistencies", modelTag, result.Checked)
				return nil
			}

			out.Warning("Found inconsistencies:")
			header := []string{"TYPE", "RECORD", "MODEL"}
			rows := make([][]string, 0, len(result.Inconsistencies))
			for _, issue := range result.Inconsistencies {
				rows = append(rows, []string{issue.Type.String(), issue.RecordID, issue.ModelTag})
			}
			out.Table(header, rows)

			if !repair {
				out.Newline()
				out.Status("", "Run with --repair to fix")
				return nil
			}

			if err := h.RepairConsistency(cmd.Context(), result.Inconsistencies); err != nil {
				return err
			}
			out.Successf("Repaired %d inconsistencies", len(result.Inconsistencies))
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelTag, "model", "m", "", "Model tag to check")
	cmd.Flags().BoolVar(&repair, "repair", false, "Repair detected inconsistencies")

	return cmd
}
