package handlers

import (
	"net/http"
	"testing"

	"github.com/meghashyamc/searchsync/services/health"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	testCases := []struct {
		name           string
		sourceDown     bool
		expectedStatus int
		expectedHealth string
	}{
		{name: "all components up", expectedStatus: http.StatusOK, expectedHealth: health.StatusHealthy},
		{name: "source down", sourceDown: true, expectedStatus: http.StatusOK, expectedHealth: health.StatusDegraded},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			server := setupTestServer(t, assert)
			server.source.down = tc.sourceDown

			w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/health", nil, nil, nil)
			assert.Equal(tc.expectedStatus, w.Code)

			var report health.Report
			decodeData(assert, w, &report)
			assert.Equal(tc.expectedHealth, report.Status)
		})
	}
}

func TestHealthWithBothStoresDown(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)
	server.source.down = true
	assert.NoError(server.searchDB.Close())

	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/health", nil, nil, nil)
	assert.Equal(http.StatusOK, w.Code)

	var report health.Report
	decodeData(assert, w, &report)
	assert.Equal(health.StatusDegraded, report.Status)
	assert.Equal(map[string]string{"source": health.ComponentDown, "index": health.ComponentDown}, report.Components)
}

func TestHealthUnhealthyWhenCheckCrashes(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)
	server.source.broken = true

	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/health", nil, nil, nil)
	assert.Equal(http.StatusServiceUnavailable, w.Code)
}
