package sources

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backing-lab/internal/domain"
	"backing-lab/internal/logger"
)

var testInstrument = domain.Instrument{ID: "susd", Name: "Staked USD", Chain: "ethereum"}

const yieldPayload = `{"data":[
	{"date":"2024-01-01","payoutPerShareUnit":"0.0001","apy":4.2},
	{"day":"2024-01-02T00:00:00Z","payout":0.0002},
	{"timestamp":1704240000,"dailyYield":"n/a"},
	{"payout":0.5}
]}`

const pricePayload = `[
	{"date":"2024-01-01","trackedPrice":1.01,"referencePrice":1.0},
	{"date":"2024-01-02","price":"1.02","nav":null}
]`

func TestDecodeYields(t *testing.T) {
	records, report, err := DecodeYields(strings.NewReader(yieldPayload))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "2024-01-01", domain.DayKey(records[0].Date))
	require.NotNil(t, records[0].PayoutPerShareUnit)
	assert.InDelta(t, 0.0001, *records[0].PayoutPerShareUnit, 1e-12)
	assert.Contains(t, records[0].RawFields, "apy")

	require.NotNil(t, records[1].PayoutPerShareUnit)
	assert.InDelta(t, 0.0002, *records[1].PayoutPerShareUnit, 1e-12)

	assert.Equal(t, "2024-01-03", domain.DayKey(records[2].Date))
	assert.Nil(t, records[2].PayoutPerShareUnit)

	assert.Equal(t, 1, report.MalformedFields)
	assert.Equal(t, 1, report.DroppedRecords)
}

func TestDecodePrices(t *testing.T) {
	records, report, err := DecodePrices(strings.NewReader(pricePayload))
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NotNil(t, records[1].TrackedPrice)
	assert.InDelta(t, 1.02, *records[1].TrackedPrice, 1e-12)
	assert.Nil(t, records[1].ReferencePrice)
	assert.Equal(t, 1, report.MalformedFields)
}

func TestDecode_InvalidPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"empty":     "  ",
		"truncated": `[{"date":`,
		"scalar":    `42`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeYields(strings.NewReader(payload))
			assert.Error(t, err)
		})
	}
}

func TestHTTPSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/yields/susd", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(yieldPayload))
	})
	mux.HandleFunc("/prices/susd", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pricePayload))
	})
	mux.HandleFunc("/prices/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient("http-sources")
	ys := NewHTTPYieldSource(client, map[string]string{"susd": server.URL + "/yields/susd"}, logger.Discard())
	ps := NewHTTPPriceSource(client, map[string]string{
		"susd":   server.URL + "/prices/susd",
		"broken": server.URL + "/prices/broken",
	}, logger.Discard())
	ctx := context.Background()

	t.Run("fetch", func(t *testing.T) {
		yields, prices, err := FetchSeries(ctx, ys, ps, testInstrument)
		require.NoError(t, err)
		assert.Len(t, yields, 3)
		assert.Len(t, prices, 2)
	})

	t.Run("unknown instrument", func(t *testing.T) {
		_, err := ys.FetchYields(ctx, domain.Instrument{ID: "other"})
		assert.ErrorIs(t, err, ErrUnknownInstrument)
	})

	t.Run("undecodable body", func(t *testing.T) {
		_, err := ps.FetchPrices(ctx, domain.Instrument{ID: "broken"})
		assert.ErrorIs(t, err, ErrUpstream)
	})
}

func TestFetchSeries_FailsWhenEitherFails(t *testing.T) {
	boom := errors.New("boom")
	ok := &StaticSource{
		Yields: map[string][]domain.YieldRecord{"susd": {{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}},
	}
	failing := &StaticSource{Err: boom}
	ctx := context.Background()

	_, _, err := FetchSeries(ctx, ok, failing, testInstrument)
	assert.ErrorIs(t, err, boom)

	_, _, err = FetchSeries(ctx, failing, ok, testInstrument)
	assert.ErrorIs(t, err, boom)
}

func TestStaticSource_ReturnsCopies(t *testing.T) {
	src := &StaticSource{
		Yields: map[string][]domain.YieldRecord{"susd": {{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}},
	}
	got, err := src.FetchYields(context.Background(), testInstrument)
	require.NoError(t, err)
	got[0].Date = time.Time{}

	again, err := src.FetchYields(context.Background(), testInstrument)
	require.NoError(t, err)
	assert.False(t, again[0].Date.IsZero())
}

func TestStaticSource_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&StaticSource{}).FetchPrices(ctx, testInstrument)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	yieldPath := filepath.Join(dir, "yields.json")
	pricePath := filepath.Join(dir, "prices.json")
	require.NoError(t, os.WriteFile(yieldPath, []byte(yieldPayload), 0o600))
	require.NoError(t, os.WriteFile(pricePath, []byte(pricePayload), 0o600))

	src := &FileSource{
		YieldFiles: map[string]string{"susd": yieldPath, "missing": filepath.Join(dir, "nope.json")},
		PriceFiles: map[string]string{"susd": pricePath},
	}
	ctx := context.Background()

	yields, prices, err := FetchSeries(ctx, src, src, testInstrument)
	require.NoError(t, err)
	assert.Len(t, yields, 3)
	assert.Len(t, prices, 2)

	_, err = src.FetchYields(ctx, domain.Instrument{ID: "missing"})
	assert.ErrorIs(t, err, ErrUpstream)

	_, err = src.FetchPrices(ctx, domain.Instrument{ID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

// captureProcessLogger redirects the process-wide logger into a buffer for the test.
func captureProcessLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	global := logger.GetLogger()
	var buf bytes.Buffer
	prevOut, prevLevel := global.Out, global.GetLevel()
	global.SetOutput(&buf)
	global.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		global.SetOutput(prevOut)
		global.SetLevel(prevLevel)
	})
	return &buf
}

func TestSources_NoLoggerWritesNothing(t *testing.T) {
	buf := captureProcessLogger(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/yields/susd", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(yieldPayload))
	})
	mux.HandleFunc("/yields/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient("quiet", WithRateLimit(0, 0), WithMaxRetries(0), WithBreaker(1, time.Minute, 1))
	ys := NewHTTPYieldSource(client, map[string]string{
		"susd": server.URL + "/yields/susd",
		"down": server.URL + "/yields/down",
	}, nil)
	ctx := context.Background()

	yields, err := ys.FetchYields(ctx, testInstrument)
	require.NoError(t, err)
	assert.Len(t, yields, 3)

	_, err = ys.FetchYields(ctx, domain.Instrument{ID: "down"})
	require.Error(t, err)

	assert.Empty(t, buf.String())
}
