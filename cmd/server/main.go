// Package main runs the projection service:
// - Refresh scheduler: fetch → persist → project for every instrument
// - HTTP API: projections, refresh triggers, run history, metrics
// - Reports (optional): Markdown and CSV per instrument after each pass
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"backing-lab/internal/api"
	"backing-lab/internal/app"
	"backing-lab/internal/config"
	"backing-lab/internal/logger"
	"backing-lab/internal/orchestrator"
	"backing-lab/internal/reporting"
)

// Server holds all components of the service.
type Server struct {
	cfg       *config.Config
	orch      *orchestrator.Orchestrator
	generator *reporting.Generator
	api       *api.Server
	reportDir string
	log       *logger.Entry

	// State
	mu          sync.Mutex
	passes      int
	passRunning bool
}

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", envOr("BACKING_CONFIG", "config.yaml"), "Path to YAML configuration")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	migrate := flag.Bool("migrate", true, "Apply embedded migrations on startup")
	reportDir := flag.String("report-dir", "", "Write Markdown/CSV reports here after each refresh pass")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *useMemory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// Setup logger
	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	entry := log.WithComponent("server")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, *migrate, log)
	if err != nil {
		entry.WithError(err).Fatal("failed to create stores")
	}
	defer cleanup()

	ys, ps, closeCache := app.HTTPSources(cfg, log)
	defer closeCache()

	orch, err := app.NewOrchestrator(cfg, stores, ys, ps, log)
	if err != nil {
		entry.WithError(err).Fatal("failed to create orchestrator")
	}

	apiCfg := api.DefaultServerConfig()
	apiCfg.Addr = cfg.Server.Addr
	apiCfg.ReadTimeout = cfg.Server.ReadTimeout
	if cfg.Server.WriteTimeout > 0 {
		apiCfg.WriteTimeout = cfg.Server.WriteTimeout
		apiCfg.RefreshTimeout = cfg.Server.WriteTimeout
	}

	server := &Server{
		cfg:       cfg,
		orch:      orch,
		generator: reporting.NewGenerator(stores.Projections, stores.Runs),
		api:       api.NewServer(apiCfg, orch, log),
		reportDir: *reportDir,
		log:       entry,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		entry.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			entry.WithField("signal", sig.String()).Warn("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout + 20*time.Second):
			entry.Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		entry.WithError(err).Fatal("server error")
	}
	entry.Info("shutdown complete")
}

func loadConfig(path string, useMemory bool) (*config.Config, error) {
	if useMemory {
		// Storage settings are irrelevant in memory mode; validate the rest.
		cfg, err := config.LoadInstruments(path)
		if err != nil {
			return nil, err
		}
		cfg.Storage.UseMemory = true
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

// Run starts the API and the refresh scheduler and blocks until ctx ends or one fails.
func (s *Server) Run(ctx context.Context) error {
	s.log.WithField("instruments", len(s.orch.Instruments())).Info("starting service")

	errCh := make(chan error, 2)

	go func() {
		if err := s.api.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		err := s.runRefreshScheduler(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("refresh scheduler: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.api.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("http shutdown")
	}
	return runErr
}

func (s *Server) runRefreshScheduler(ctx context.Context) error {
	interval := s.cfg.Refresh.Interval
	if interval == 0 {
		s.log.Info("refresh scheduler disabled (interval 0)")
		if s.cfg.Refresh.OnStartup {
			s.runPass(ctx)
		}
		<-ctx.Done()
		return ctx.Err()
	}

	s.log.WithField("interval", interval.String()).Info("starting refresh scheduler")

	// Run immediately on start
	if s.cfg.Refresh.OnStartup {
		s.runPass(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass refreshes every instrument once. Overlapping passes are skipped.
func (s *Server) runPass(ctx context.Context) {
	s.mu.Lock()
	if s.passRunning {
		s.mu.Unlock()
		s.log.Warn("previous refresh pass still running, skipping")
		return
	}
	s.passRunning = true
	s.passes++
	pass := s.passes
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.passRunning = false
		s.mu.Unlock()
	}()

	start := time.Now()
	result, err := s.orch.RefreshAll(ctx)
	if err != nil {
		return
	}
	for _, e := range result.Errors {
		s.log.WithFields(logger.Fields{"pass": pass, "error": e}).Warn("instrument refresh failed")
	}
	logger.LogDuration(s.log, "refresh pass", time.Since(start), logger.Fields{
		"pass":      pass,
		"succeeded": result.Succeeded,
		"failed":    len(result.Errors),
	})

	if s.reportDir != "" {
		s.writeReports(ctx)
	}
}

// writeReports renders the latest stored snapshot of every instrument.
func (s *Server) writeReports(ctx context.Context) {
	if err := os.MkdirAll(s.reportDir, 0o755); err != nil {
		s.log.WithError(err).Error("create report dir")
		return
	}

	for _, inst := range s.orch.Instruments() {
		r, err := s.generator.Generate(ctx, inst)
		if err != nil {
			s.log.WithError(err).WithField("instrument", inst.ID).Debug("no report")
			continue
		}
		files := map[string]string{
			inst.ID + ".md":  reporting.RenderMarkdown(r, 60),
			inst.ID + ".csv": reporting.RenderCSV(r.Points),
		}
		for name, content := range files {
			path := filepath.Join(s.reportDir, name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				s.log.WithError(err).WithField("path", path).Error("write report")
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
