// Package app assembles stores, sources and the orchestrator from configuration.
package app

import (
	"context"
	"fmt"

	"backing-lab/internal/cache"
	"backing-lab/internal/config"
	"backing-lab/internal/domain"
	"backing-lab/internal/logger"
	"backing-lab/internal/orchestrator"
	"backing-lab/internal/sources"
	"backing-lab/internal/storage"
	chstore "backing-lab/internal/storage/clickhouse"
	"backing-lab/internal/storage/memory"
	"backing-lab/internal/storage/migrations"
	pgstore "backing-lab/internal/storage/postgres"
)

// Stores holds all storage implementations.
type Stores struct {
	Yields      storage.YieldRecordStore
	Prices      storage.PriceRecordStore
	Projections storage.ProjectionStore
	Runs        storage.RefreshRunStore
}

// MemoryStores returns in-memory stores.
func MemoryStores() *Stores {
	return &Stores{
		Yields:      memory.NewYieldRecordStore(),
		Prices:      memory.NewPriceRecordStore(),
		Projections: memory.NewProjectionStore(),
		Runs:        memory.NewRefreshRunStore(),
	}
}

// OpenStores connects the configured backends. With migrate set, embedded
// migrations are applied first. Without a ClickHouse DSN snapshots are kept
// in memory.
func OpenStores(ctx context.Context, cfg config.StorageConfig, migrate bool, log *logger.Log) (*Stores, func(), error) {
	entry := log.WithComponent("app")
	if cfg.UseMemory {
		entry.Info("using in-memory storage")
		return MemoryStores(), func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if migrate {
		n, err := migrations.RunPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		entry.WithField("files", n).Info("postgres migrations applied")
	}

	stores := &Stores{
		Yields: pgstore.NewYieldRecordStore(pool),
		Prices: pgstore.NewPriceRecordStore(pool),
		Runs:   pgstore.NewRefreshRunStore(pool),
	}

	// ClickHouse
	if cfg.ClickHouseDSN == "" {
		entry.Warn("no clickhouse DSN configured, projection snapshots are kept in memory")
		stores.Projections = memory.NewProjectionStore()
		return stores, pool.Close, nil
	}

	var chConn *chstore.Conn
	if migrate {
		var n int
		chConn, n, err = migrations.RunClickHouse(ctx, cfg.ClickHouseDSN)
		if err == nil {
			entry.WithField("files", n).Info("clickhouse migrations applied")
		}
	} else {
		chConn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	stores.Projections = chstore.NewProjectionStore(chConn)

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// Instruments converts every configured instrument.
func Instruments(cfg *config.Config) ([]domain.Instrument, error) {
	out := make([]domain.Instrument, 0, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		inst, err := ic.Instrument()
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", ic.ID, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// HTTPSources builds cached HTTP sources for every configured endpoint.
// The returned func releases the cache connection.
func HTTPSources(cfg *config.Config, log *logger.Log) (sources.YieldSource, sources.PriceSource, func()) {
	yieldURLs := make(map[string]string, len(cfg.Instruments))
	priceURLs := make(map[string]string, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		yieldURLs[ic.ID] = ic.YieldURL
		priceURLs[ic.ID] = ic.PriceURL
	}

	ys := sources.NewHTTPYieldSource(newClient("yield-source", cfg.Sources, log), yieldURLs, log)
	ps := sources.NewHTTPPriceSource(newClient("price-source", cfg.Sources, log), priceURLs, log)

	c := cache.NewAuto(cfg.Cache.RedisAddr)
	opts := cache.Options{ExpiryHour: cfg.Cache.ExpiryHour, Logger: log}

	closeCache := func() {}
	if r, ok := c.(*cache.Redis); ok {
		log.WithComponent("app").WithField("addr", cfg.Cache.RedisAddr).Info("using redis cache")
		closeCache = func() { _ = r.Close() }
	}
	return cache.NewCachedYieldSource(ys, c, opts), cache.NewCachedPriceSource(ps, c, opts), closeCache
}

func newClient(name string, cfg config.SourcesConfig, log *logger.Log) *sources.Client {
	opts := []sources.ClientOption{
		sources.WithMaxRetries(cfg.MaxRetries),
		sources.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize),
		sources.WithBreaker(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.RecoveryTimeout, cfg.CircuitBreaker.HalfOpenMaxRequests),
		sources.WithLogger(log),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, sources.WithTimeout(cfg.Timeout))
	}
	if cfg.RetryBaseDelay > 0 {
		opts = append(opts, sources.WithRetryDelay(cfg.RetryBaseDelay))
	}
	return sources.NewClient(name, opts...)
}

// NewOrchestrator wires the orchestrator over stores and sources.
func NewOrchestrator(cfg *config.Config, stores *Stores, ys sources.YieldSource, ps sources.PriceSource, log *logger.Log) (*orchestrator.Orchestrator, error) {
	instruments, err := Instruments(cfg)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Options{
		YieldSource:     ys,
		PriceSource:     ps,
		YieldStore:      stores.Yields,
		PriceStore:      stores.Prices,
		ProjectionStore: stores.Projections,
		RunStore:        stores.Runs,
		Instruments:     instruments,
		Concurrency:     cfg.Refresh.Concurrency,
		Logger:          log,
	})
}
