package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"backing-lab/internal/app"
	"backing-lab/internal/logger"
	"backing-lab/internal/reporting"
)

// reportCmd renders the latest stored projection
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the latest stored projection",
	Long: `Render an instrument's latest persisted snapshot together with its recent
refresh runs as Markdown or CSV.`,
	RunE: runReport,
}

// Report command flags
var (
	reportInstrument string
	reportFormat     string
	reportMaxRows    int
	reportOutput     string
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportInstrument, "instrument", "", "Instrument ID (optional with a single configured instrument)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format (md|csv)")
	reportCmd.Flags().IntVar(&reportMaxRows, "max-rows", 60, "Limit Markdown series rows (0 = all)")
	reportCmd.Flags().StringVar(&reportOutput, "output", "", "Output file (default: stdout)")
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportFormat != "md" && reportFormat != "csv" {
		return fmt.Errorf("--format must be md or csv")
	}

	cfg, err := loadServiceConfig(false)
	if err != nil {
		return err
	}
	inst, err := pickInstrument(cfg, reportInstrument)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, time.Minute)
	defer cancel()

	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, false, logger.GetLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := reporting.NewGenerator(stores.Projections, stores.Runs).Generate(ctx, inst)
	if err != nil {
		return err
	}

	w, closeOut, err := output(cmd, reportOutput)
	if err != nil {
		return err
	}
	content := reporting.RenderCSV(r.Points)
	if reportFormat == "md" {
		content = reporting.RenderMarkdown(r, reportMaxRows)
	}
	if _, err := io.WriteString(w, content); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}
