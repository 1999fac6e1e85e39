package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreRegisteredAndScraped(t *testing.T) {
	assert := require.New(t)
	m := New(prometheus.NewRegistry())

	m.SyncRecordsTotal.WithLabelValues(OutcomeSynced).Add(3)
	m.SearchQueriesTotal.WithLabelValues(ResultZeroResult).Inc()
	assert.Equal(float64(3), testutil.ToFloat64(m.SyncRecordsTotal.WithLabelValues(OutcomeSynced)))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(http.StatusOK, w.Code)
	assert.Contains(w.Body.String(), `sync_records_total{outcome="synced"} 3`)
	assert.Contains(w.Body.String(), `search_queries_total{result_type="zero_result"} 1`)
}

func TestNewWithSeparateRegistries(t *testing.T) {
	assert := require.New(t)
	assert.NotPanics(func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
