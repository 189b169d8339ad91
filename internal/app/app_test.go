package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backing-lab/internal/config"
	"backing-lab/internal/domain"
	"backing-lab/internal/logger"
)

const yields = `[
	{"date":"2024-01-01","payoutPerShareUnit":0.01},
	{"date":"2024-01-02","payoutPerShareUnit":0.01},
	{"date":"2024-01-03","payoutPerShareUnit":0.01}
]`

const prices = `{"data":[
	{"date":"2024-01-01","trackedPrice":0.99,"referencePrice":1},
	{"date":"2024-01-03","trackedPrice":0.995,"referencePrice":1}
]}`

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	t.Setenv("REDIS_ADDR", "")
	yaml := fmt.Sprintf(`
storage:
  use_memory: true
sources:
  max_retries: 0
  rate_limit:
    requests_per_second: 0
instruments:
  - id: susd
    name: Staked USD
    yield_url: %[1]s/yields
    price_url: %[1]s/prices
    projection:
      start_date: "2024-01-01"
      principal: 1000000
      denominator_mode: principal
      shares_held: 100
      end_day: 10
`, baseURL)
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestOpenStores_Memory(t *testing.T) {
	stores, cleanup, err := OpenStores(context.Background(), config.StorageConfig{UseMemory: true}, true, logger.Discard())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, stores.Yields)
	assert.NotNil(t, stores.Prices)
	assert.NotNil(t, stores.Projections)
	assert.NotNil(t, stores.Runs)
}

func TestInstruments(t *testing.T) {
	cfg := testConfig(t, "http://unused")

	insts, err := Instruments(cfg)
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, "susd", insts[0].ID)
	assert.Equal(t, 10, insts[0].Projection.EndDay)
	assert.Equal(t, domain.DenominatorPrincipal, insts[0].Projection.DenominatorMode)
}

func TestEndToEnd_HTTPSourcesThroughOrchestrator(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/yields", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(yields))
	})
	mux.HandleFunc("/prices", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(prices))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(t, server.URL)
	log := logger.Discard()
	ys, ps, closeCache := HTTPSources(cfg, log)
	defer closeCache()

	orch, err := NewOrchestrator(cfg, MemoryStores(), ys, ps, log)
	require.NoError(t, err)

	ctx := context.Background()
	out, err := orch.Refresh(ctx, "susd")
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, out.Run.Status)
	assert.Len(t, out.Snapshot.Points, 11)
	assert.Nil(t, out.Result.History[1].Discount, "no price on day 1")

	_, err = orch.Refresh(ctx, "susd")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "second refresh is served from cache")
}
