package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWith_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "test")

	m.RefreshRunsTotal.WithLabelValues("usdy", "succeeded").Inc()
	m.CacheRequests.WithLabelValues("yield", "hit").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshRunsTotal.WithLabelValues("usdy", "succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("yield", "hit")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.SourceFetchErrors.WithLabelValues("test-src", "yield"))
	RecordFetch("test-src", "yield", 0.2, errors.New("boom"))
	RecordFetch("test-src", "yield", 0.1, nil)
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.SourceFetchErrors.WithLabelValues("test-src", "yield")))

	d := 0.97
	UpdateProjection("test-inst", 366, 1.0042, &d)
	assert.Equal(t, 366.0, testutil.ToFloat64(DefaultMetrics.ProjectedPoints.WithLabelValues("test-inst")))
	assert.Equal(t, 1.0042, testutil.ToFloat64(DefaultMetrics.LatestBackingRatio.WithLabelValues("test-inst")))
	assert.Equal(t, 0.97, testutil.ToFloat64(DefaultMetrics.LatestDiscount.WithLabelValues("test-inst")))

	UpdateProjection("test-inst", 10, 1.1, nil)
	assert.Equal(t, 0.97, testutil.ToFloat64(DefaultMetrics.LatestDiscount.WithLabelValues("test-inst")), "nil discount keeps last value")
}

func TestHandler_ExposesNamespace(t *testing.T) {
	RecordRefresh("handler-test", "succeeded", 0.5)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "backing_lab_refresh_runs_total"))
}
