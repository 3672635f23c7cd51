package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/output"
)

func newDeleteCmd() *cobra.Command {
	var modelTag string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an embedding record and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			h, _, err := openHub()
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if err := h.Delete(cmd.Context(), args[0], modelTag); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}

			out.Successf("Deleted %s (%s)", args[0], modelTag)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelTag, "model", "m", "", "Model tag of the record")

	return cmd
}
