package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"backing-lab/internal/app"
	"backing-lab/internal/domain"
	"backing-lab/internal/logger"
	"backing-lab/internal/projection"
	"backing-lab/internal/reporting"
	"backing-lab/internal/sources"
)

// projectCmd computes a projection without touching storage
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Compute a projection from fixtures or live sources",
	Long: `Compute one instrument's projection and print it. With --yields and --prices
the series are read from JSON files; otherwise they are fetched from the
instrument's configured endpoints. Nothing is persisted.

Examples:
  backingctl project --yields yields.json --prices prices.json
  backingctl project --instrument susd --format csv --output susd.csv`,
	RunE: runProject,
}

// Project command flags
var (
	projectInstrument string
	projectYields     string
	projectPrices     string
	projectFormat     string
	projectMaxRows    int
	projectOutput     string
	projectTimeout    time.Duration
)

func init() {
	rootCmd.AddCommand(projectCmd)

	projectCmd.Flags().StringVar(&projectInstrument, "instrument", "", "Instrument ID (optional with a single configured instrument)")
	projectCmd.Flags().StringVar(&projectYields, "yields", "", "Yield series JSON file")
	projectCmd.Flags().StringVar(&projectPrices, "prices", "", "Price series JSON file")
	projectCmd.Flags().StringVar(&projectFormat, "format", "md", "Output format (md|csv|json)")
	projectCmd.Flags().IntVar(&projectMaxRows, "max-rows", 0, "Limit Markdown series rows (0 = all)")
	projectCmd.Flags().StringVar(&projectOutput, "output", "", "Output file (default: stdout)")
	projectCmd.Flags().DurationVar(&projectTimeout, "timeout", 2*time.Minute, "Fetch timeout for live sources")
}

func runProject(cmd *cobra.Command, args []string) error {
	if projectFormat != "md" && projectFormat != "csv" && projectFormat != "json" {
		return fmt.Errorf("--format must be md, csv or json")
	}
	if (projectYields == "") != (projectPrices == "") {
		return fmt.Errorf("--yields and --prices must be given together")
	}

	cfg, err := loadInstrumentConfig()
	if err != nil {
		return err
	}
	inst, err := pickInstrument(cfg, projectInstrument)
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	var ys sources.YieldSource
	var ps sources.PriceSource
	if projectYields != "" {
		files := &sources.FileSource{
			YieldFiles: map[string]string{inst.ID: projectYields},
			PriceFiles: map[string]string{inst.ID: projectPrices},
		}
		ys, ps = files, files
	} else {
		var closeCache func()
		ys, ps, closeCache = app.HTTPSources(cfg, log)
		defer closeCache()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), projectTimeout)
	defer cancel()

	yields, prices, err := sources.FetchSeries(ctx, ys, ps, inst)
	if err != nil {
		return err
	}

	engine, err := projection.NewEngine(inst.Projection)
	if err != nil {
		return err
	}
	res, err := engine.Project(yields, prices)
	if err != nil {
		return err
	}

	log.WithComponent("project").WithFields(logger.Fields{
		"instrument": inst.ID,
		"history":    len(res.History),
		"points":     len(res.Points),
	}).Info("projection computed")

	w, closeOut, err := output(cmd, projectOutput)
	if err != nil {
		return err
	}
	if err := writeProjection(w, inst, res); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func writeProjection(w io.Writer, inst domain.Instrument, res *projection.Result) error {
	report := reporting.FromResult(inst, res, time.Now().UTC())

	switch projectFormat {
	case "csv":
		_, err := io.WriteString(w, reporting.RenderCSV(res.Points))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			InstrumentID string                   `json:"instrumentId"`
			Summary      reporting.Summary        `json:"summary"`
			Models       []domain.RegressionModel `json:"models"`
			Points       []domain.ProjectedPoint  `json:"points"`
		}{inst.ID, report.Summary, report.Models, res.Points})
	default:
		_, err := io.WriteString(w, reporting.RenderMarkdown(report, projectMaxRows))
		return err
	}
}
