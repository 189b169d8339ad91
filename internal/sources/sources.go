package sources

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"backing-lab/internal/domain"
	"backing-lab/internal/logger"
	"backing-lab/internal/normalization"
	"backing-lab/internal/observability"
)

// YieldSource provides the raw yield series for an instrument.
type YieldSource interface {
	FetchYields(ctx context.Context, inst domain.Instrument) ([]domain.YieldRecord, error)
}

// PriceSource provides the raw price series for an instrument.
type PriceSource interface {
	FetchPrices(ctx context.Context, inst domain.Instrument) ([]domain.PriceRecord, error)
}

// FetchSeries fetches both series concurrently and returns only when both succeed.
// Either failure cancels the other fetch and is returned as is.
func FetchSeries(ctx context.Context, ys YieldSource, ps PriceSource, inst domain.Instrument) ([]domain.YieldRecord, []domain.PriceRecord, error) {
	var (
		yields []domain.YieldRecord
		prices []domain.PriceRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		yields, err = ys.FetchYields(gctx, inst)
		if err != nil {
			return fmt.Errorf("fetch yields for %s: %w", inst.ID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		prices, err = ps.FetchPrices(gctx, inst)
		if err != nil {
			return fmt.Errorf("fetch prices for %s: %w", inst.ID, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return yields, prices, nil
}

// HTTPYieldSource fetches yield series from per-instrument JSON endpoints.
type HTTPYieldSource struct {
	client    *Client
	endpoints map[string]string
	log       *logger.Entry
}

// NewHTTPYieldSource creates a source over endpoints keyed by instrument ID.
func NewHTTPYieldSource(client *Client, endpoints map[string]string, log *logger.Log) *HTTPYieldSource {
	if log == nil {
		log = logger.Discard()
	}
	return &HTTPYieldSource{client: client, endpoints: endpoints, log: log.WithComponent("sources").WithField("kind", "yield")}
}

var _ YieldSource = (*HTTPYieldSource)(nil)

// FetchYields implements YieldSource.
func (s *HTTPYieldSource) FetchYields(ctx context.Context, inst domain.Instrument) ([]domain.YieldRecord, error) {
	url, ok := s.endpoints[inst.ID]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, inst.ID)
	}

	start := time.Now()
	body, err := s.client.Get(ctx, url)
	observability.RecordFetch(s.client.Name(), "yield", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	records, report, err := DecodeYields(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, s.client.Name(), err)
	}
	logReport(s.log.WithField("instrument", inst.ID), "yield", len(records), report)
	return records, nil
}

// HTTPPriceSource fetches price series from per-instrument JSON endpoints.
type HTTPPriceSource struct {
	client    *Client
	endpoints map[string]string
	log       *logger.Entry
}

// NewHTTPPriceSource creates a source over endpoints keyed by instrument ID.
func NewHTTPPriceSource(client *Client, endpoints map[string]string, log *logger.Log) *HTTPPriceSource {
	if log == nil {
		log = logger.Discard()
	}
	return &HTTPPriceSource{client: client, endpoints: endpoints, log: log.WithComponent("sources").WithField("kind", "price")}
}

var _ PriceSource = (*HTTPPriceSource)(nil)

// FetchPrices implements PriceSource.
func (s *HTTPPriceSource) FetchPrices(ctx context.Context, inst domain.Instrument) ([]domain.PriceRecord, error) {
	url, ok := s.endpoints[inst.ID]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, inst.ID)
	}

	start := time.Now()
	body, err := s.client.Get(ctx, url)
	observability.RecordFetch(s.client.Name(), "price", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	records, report, err := DecodePrices(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, s.client.Name(), err)
	}
	logReport(s.log.WithField("instrument", inst.ID), "price", len(records), report)
	return records, nil
}

// StaticSource serves fixed in-memory series. It implements both source interfaces.
type StaticSource struct {
	Yields map[string][]domain.YieldRecord
	Prices map[string][]domain.PriceRecord
	Err    error // returned by every fetch when set
}

var (
	_ YieldSource = (*StaticSource)(nil)
	_ PriceSource = (*StaticSource)(nil)
)

// FetchYields implements YieldSource.
func (s *StaticSource) FetchYields(ctx context.Context, inst domain.Instrument) ([]domain.YieldRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]domain.YieldRecord(nil), s.Yields[inst.ID]...), nil
}

// FetchPrices implements PriceSource.
func (s *StaticSource) FetchPrices(ctx context.Context, inst domain.Instrument) ([]domain.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]domain.PriceRecord(nil), s.Prices[inst.ID]...), nil
}

// FileSource reads series from JSON files in the same shape the HTTP endpoints serve.
type FileSource struct {
	YieldFiles map[string]string // instrument ID -> path
	PriceFiles map[string]string
}

var (
	_ YieldSource = (*FileSource)(nil)
	_ PriceSource = (*FileSource)(nil)
)

// FetchYields implements YieldSource.
func (s *FileSource) FetchYields(_ context.Context, inst domain.Instrument) ([]domain.YieldRecord, error) {
	path, ok := s.YieldFiles[inst.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, inst.ID)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer f.Close()

	records, _, err := DecodeYields(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, path, err)
	}
	return records, nil
}

// FetchPrices implements PriceSource.
func (s *FileSource) FetchPrices(_ context.Context, inst domain.Instrument) ([]domain.PriceRecord, error) {
	path, ok := s.PriceFiles[inst.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, inst.ID)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer f.Close()

	records, _, err := DecodePrices(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, path, err)
	}
	return records, nil
}

func logReport(entry *logger.Entry, kind string, n int, r normalization.Report) {
	observability.RecordNormalization(kind, r.MalformedFields, r.DroppedRecords, r.DuplicateDays)
	fields := logger.Fields{
		"records":   n,
		"malformed": r.MalformedFields,
		"dropped":   r.DroppedRecords,
	}
	if r.MalformedFields > 0 || r.DroppedRecords > 0 {
		entry.WithFields(fields).Warn("series fetched with coerced fields")
		return
	}
	entry.WithFields(fields).Debug("series fetched")
}
