package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"backing-lab/internal/app"
	"backing-lab/internal/config"
	"backing-lab/internal/logger"
	"backing-lab/internal/reporting"
)

// refreshCmd runs one refresh pass outside the server
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch, persist and project instruments once",
	Long: `Run a single refresh for one instrument, or for all configured instruments
when --instrument is omitted. Results are persisted like a scheduled refresh.`,
	RunE: runRefresh,
}

// Refresh command flags
var (
	refreshInstrument string
	refreshUseMemory  bool
	refreshMigrate    bool
	refreshTimeout    time.Duration
)

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringVar(&refreshInstrument, "instrument", "", "Instrument ID (default: all)")
	refreshCmd.Flags().BoolVar(&refreshUseMemory, "use-memory", false, "Use in-memory storage")
	refreshCmd.Flags().BoolVar(&refreshMigrate, "migrate", false, "Apply migrations before refreshing")
	refreshCmd.Flags().DurationVar(&refreshTimeout, "timeout", 5*time.Minute, "Overall timeout")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadServiceConfig(refreshUseMemory)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, refreshTimeout)
	defer cancel()

	log := logger.GetLogger()
	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, refreshMigrate, log)
	if err != nil {
		return err
	}
	defer cleanup()

	ys, ps, closeCache := app.HTTPSources(cfg, log)
	defer closeCache()

	orch, err := app.NewOrchestrator(cfg, stores, ys, ps, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if refreshInstrument != "" {
		res, err := orch.Refresh(ctx, refreshInstrument)
		if err != nil {
			return err
		}
		s := reporting.Summarize(res.Snapshot.Points)
		fmt.Fprintf(out, "%s: run %s, %d points, last backing ratio %.8f, horizon trend %.8f\n",
			refreshInstrument, res.Run.RunID, len(res.Snapshot.Points), s.LastBackingRatio, s.HorizonTrend)
		return nil
	}

	result, err := orch.RefreshAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "refreshed %d/%d instruments\n", result.Succeeded, result.Instruments)
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  failed: %s\n", e)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d instrument(s) failed", len(result.Errors))
	}
	return nil
}

// loadServiceConfig loads the full configuration. With useMemory the storage
// requirements are lifted.
func loadServiceConfig(useMemory bool) (*config.Config, error) {
	if !useMemory {
		return config.Load(configPath)
	}
	cfg, err := config.LoadInstruments(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Storage.UseMemory = true
	return cfg, cfg.Validate()
}

// loadInstrumentConfig loads only what offline commands need.
func loadInstrumentConfig() (*config.Config, error) {
	return config.LoadInstruments(configPath)
}
