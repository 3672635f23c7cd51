// Package cmd provides the CLI commands for cartrita-hub.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/config"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/logging"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/profiling"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/pkg/hub"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/pkg/version"
)

var (
	dataDir        string
	debugMode      bool
	cpuProfile     string
	heapProfile    string
	loggingCleanup func()
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the cartrita-hub CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cartrita-hub",
		Short: "Embedding storage and hybrid retrieval engine",
		Long: `cartrita-hub stores embedding records and serves hybrid queries that
fuse vector similarity with BM25 keyword matching.

Records are deduplicated by content hash, so re-upserting unchanged
content is free. Vector indexes rebuild in the background without
blocking queries.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("cartrita-hub version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: from config)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&cpuProfile, "cpu-profile", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&heapProfile, "heap-profile", "", "Write a heap profile to this file on exit")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := setupLogging(c, args); err != nil {
			return err
		}
		opts := profiling.Options{CPUPath: cpuProfile, HeapPath: heapProfile}
		if !opts.Enabled() {
			return nil
		}
		s, err := profiling.Start(opts)
		if err != nil {
			return err
		}
		profileSession = s
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		err := profileSession.Stop()
		profileSession = nil
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
		return err
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newUpsertCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads configuration and applies CLI flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// openHub loads configuration and opens the hub over its data directory.
func openHub() (*hub.Hub, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	h, err := hub.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open hub: %w", err)
	}
	return h, cfg, nil
}

// setupLogging initializes file logging before any command runs.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		// Commands surface config errors themselves with more context.
		return nil
	}

	logCfg := logging.DefaultConfig(cfg.DataDir)
	logCfg.Level = cfg.Logging.Level
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
	}
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Debug("debug logging enabled", slog.String("log_file", logCfg.FilePath))
	}
	return nil
}
