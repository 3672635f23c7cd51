package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/index"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/output"
)

func newRebuildCmd() *cobra.Command {
	var (
		modelTag string
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index from the record store",
		Long: `Rebuild the vector index from the record store.

The old index keeps serving queries until the replacement is ready.
Only one rebuild per model tag runs at a time; a second request
reports that a rebuild is already in progress.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			h, _, err := openHub()
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if wait {
				out.Statusf("", "Rebuilding index for %s...", modelTag)
				if err := h.RebuildIndexAndWait(cmd.Context(), modelTag); err != nil {
					return err
				}
				out.Success("Rebuild complete")
				return nil
			}

			status, err := h.RebuildIndex(cmd.Context(), modelTag)
			if err != nil {
				return err
			}
			switch status {
			case index.RebuildStarted:
				out.Successf("Rebuild started for %s", modelTag)
			case index.RebuildAlreadyInProgress:
				out.Warning("A rebuild is already in progress for " + modelTag)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelTag, "model", "m", "", "Model tag to rebuild")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the rebuild finishes")

	return cmd
}
