package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"backing-lab/internal/domain"
	"backing-lab/internal/logger"
	"backing-lab/internal/observability"
	"backing-lab/internal/sources"
)

// Options configures the cached source decorators.
type Options struct {
	ExpiryHour int              // UTC hour at which entries expire
	Now        func() time.Time // defaults to time.Now
	Logger     *logger.Log
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	return o
}

// CachedYieldSource serves yield series from a cache, fetching on miss.
type CachedYieldSource struct {
	next  sources.YieldSource
	cache Cache
	opts  Options
	log   *logger.Entry
}

// NewCachedYieldSource decorates next with cache.
func NewCachedYieldSource(next sources.YieldSource, c Cache, opts Options) *CachedYieldSource {
	opts = opts.withDefaults()
	return &CachedYieldSource{next: next, cache: c, opts: opts, log: opts.Logger.WithComponent("cache")}
}

var _ sources.YieldSource = (*CachedYieldSource)(nil)

// FetchYields implements sources.YieldSource.
func (s *CachedYieldSource) FetchYields(ctx context.Context, inst domain.Instrument) ([]domain.YieldRecord, error) {
	return through(ctx, s.cache, s.opts, s.log, "yield", inst.ID, func() ([]domain.YieldRecord, error) {
		return s.next.FetchYields(ctx, inst)
	})
}

// CachedPriceSource serves price series from a cache, fetching on miss.
type CachedPriceSource struct {
	next  sources.PriceSource
	cache Cache
	opts  Options
	log   *logger.Entry
}

// NewCachedPriceSource decorates next with cache.
func NewCachedPriceSource(next sources.PriceSource, c Cache, opts Options) *CachedPriceSource {
	opts = opts.withDefaults()
	return &CachedPriceSource{next: next, cache: c, opts: opts, log: opts.Logger.WithComponent("cache")}
}

var _ sources.PriceSource = (*CachedPriceSource)(nil)

// FetchPrices implements sources.PriceSource.
func (s *CachedPriceSource) FetchPrices(ctx context.Context, inst domain.Instrument) ([]domain.PriceRecord, error) {
	return through(ctx, s.cache, s.opts, s.log, "price", inst.ID, func() ([]domain.PriceRecord, error) {
		return s.next.FetchPrices(ctx, inst)
	})
}

// Key returns the cache key for a series kind and instrument.
func Key(kind, instrumentID string) string {
	return kind + ":" + instrumentID
}

// through returns the cached series for key, or calls fetch and stores its result.
// Cache errors are logged and never fail the fetch.
func through[T any](ctx context.Context, c Cache, opts Options, log *logger.Entry, kind, instrumentID string, fetch func() ([]T, error)) ([]T, error) {
	key := Key(kind, instrumentID)
	entry := log.WithFields(logger.Fields{"key": key, "instrument": instrumentID})

	b, err := c.Get(ctx, key)
	switch {
	case err == nil:
		var cached []T
		if err := json.Unmarshal(b, &cached); err == nil {
			observability.RecordCache(kind, "hit")
			return cached, nil
		}
		entry.Warn("discarding undecodable cache entry")
	case errors.Is(err, ErrMiss):
		observability.RecordCache(kind, "miss")
	default:
		observability.RecordCache(kind, "error")
		entry.WithError(err).Warn("cache read failed, fetching directly")
	}

	records, err := fetch()
	if err != nil {
		return nil, err
	}

	b, err = json.Marshal(records)
	if err != nil {
		entry.WithError(err).Warn("cache encode failed")
		return records, nil
	}
	ttl := UntilNextUTCHour(opts.Now(), opts.ExpiryHour)
	if err := c.Set(ctx, key, b, ttl); err != nil {
		entry.WithError(err).Warn("cache write failed")
	}
	return records, nil
}
