package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/configs"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/config"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/output"
)

func newInitCmd() *cobra.Command {
	var (
		userConfig bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a starter configuration file.

By default this creates .cartrita-hub.yaml in the current directory with
the model tag registry and search settings for this project. With --user
it instead creates the machine-level config under ~/.config/cartrita-hub.

Existing files are never overwritten unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			path := ".cartrita-hub.yaml"
			template := configs.ProjectConfigTemplate
			if userConfig {
				path = config.GetUserConfigPath()
				template = configs.UserConfigTemplate
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("create config directory: %w", err)
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			out.Successf("Wrote %s", path)
			out.Statusf("", "Edit the models section to register your embedding model tags.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&userConfig, "user", false, "Write the machine-level config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}
