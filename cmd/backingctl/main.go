// Package main provides backingctl, the command-line companion of the projection service.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"backing-lab/internal/config"
	"backing-lab/internal/domain"
	"backing-lab/internal/logger"
)

// Global flags
var (
	configPath string
	logLevel   string
)

// rootCmd is the base command for the backingctl CLI
var rootCmd = &cobra.Command{
	Use:   "backingctl",
	Short: "Backing-ratio projection tooling",
	Long: `backingctl computes backing-ratio projections for yield-bearing instruments,
manages the service database and triggers refreshes outside the server.

Examples:
  backingctl project --instrument susd --yields yields.json --prices prices.json
  backingctl migrate --config config.yaml
  backingctl refresh --use-memory
  backingctl report --instrument susd --format csv`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		return logger.GetLogger().Configure(logLevel, "text", "stderr")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("BACKING_CONFIG", "config.yaml"), "Path to YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// pickInstrument returns the instrument named id, or the only configured one when id is empty.
func pickInstrument(cfg *config.Config, id string) (domain.Instrument, error) {
	if id == "" {
		if len(cfg.Instruments) != 1 {
			return domain.Instrument{}, fmt.Errorf("--instrument is required when %d instruments are configured", len(cfg.Instruments))
		}
		id = cfg.Instruments[0].ID
	}
	for _, ic := range cfg.Instruments {
		if ic.ID == id {
			return ic.Instrument()
		}
	}
	return domain.Instrument{}, fmt.Errorf("instrument %q is not configured", id)
}

// output returns the writer for path, or stdout when path is empty.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, f.Close, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
