package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meghashyamc/searchsync/models"
	"github.com/stretchr/testify/require"
)

func TestSyncValidation(t *testing.T) {
	testCases := []testCase{
		{
			name:             "incremental with force all",
			requestHeaders:   defaultTestRequestHeaders,
			requestBody:      map[string]any{"incremental": true, "force_all": true},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"incremental and force_all cannot be used together"}},
		},
		{
			name:             "batch size too large",
			requestHeaders:   defaultTestRequestHeaders,
			requestBody:      map[string]any{"batch_size": 501},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"value or length of field 'batch_size' is not in the expected range"}},
		},
		{
			name:             "days out of range",
			requestHeaders:   defaultTestRequestHeaders,
			requestBody:      map[string]any{"incremental": true, "days": 366},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"value or length of field 'days' is not in the expected range"}},
		},
		{
			name:             "flag has the wrong type",
			requestHeaders:   defaultTestRequestHeaders,
			requestBody:      map[string]any{"dry_run": "yes"},
			expectedStatus:   http.StatusUnprocessableEntity,
			expectedResponse: &response{Errors: []string{"failed to extract request parameters"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			server := setupTestServer(t, assert)

			w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/sync", tc.requestHeaders, tc.requestBody, tc.queryParams)
			assert.Equal(tc.expectedStatus, w.Code)

			var got response
			decodeEnvelope(assert, w, &got)
			assert.Equal(*tc.expectedResponse, got)
			assert.Zero(server.source.calls)
		})
	}
}

func TestSync(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/sync", defaultTestRequestHeaders, map[string]any{"batch_size": 2}, nil)
	assert.Equal(http.StatusOK, w.Code)

	var run models.SyncRun
	decodeData(assert, w, &run)
	assert.Equal(models.SyncModeFull, run.Mode)
	assert.Equal(3, run.Processed)
	assert.Equal(2, run.Synced)
	assert.Equal(1, run.Skipped)
	assert.Zero(run.Errors)
	assert.Equal(models.SyncStateCompleted, run.Status)
	assert.Equal(66.67, run.SuccessRate)

	count, err := server.searchDB.Count(context.Background())
	assert.NoError(err)
	assert.Equal(uint64(2), count)
}

func TestSearchAfterSyncIsNotServedFromCache(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)
	searchParams := map[string]string{"query": "Django"}

	var results models.SearchResponse
	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", nil, nil, searchParams)
	assert.Equal(http.StatusOK, w.Code)
	decodeData(assert, w, &results)
	assert.Zero(results.Total)

	syncTestRecords(server, assert)

	w = makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", nil, nil, searchParams)
	assert.Equal(http.StatusOK, w.Code)
	decodeData(assert, w, &results)
	assert.Equal(uint64(1), results.Total)
	assert.Equal("p1", results.Results[0].ID)
}

func TestSyncOutlivesClientDisconnect(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	request := httptest.NewRequest(http.MethodPost, "/sync", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, request)
	assert.Equal(http.StatusOK, w.Code)

	var run models.SyncRun
	decodeData(assert, w, &run)
	assert.Equal(models.SyncStateCompleted, run.Status)
	assert.Equal(2, run.Synced)
}

func TestSyncWithoutBody(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/sync", nil, nil, nil)
	assert.Equal(http.StatusOK, w.Code)

	var run models.SyncRun
	decodeData(assert, w, &run)
	assert.Equal(2, run.Synced)
}

func TestSyncWithUnreachableSource(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)
	server.source.down = true

	w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/sync", defaultTestRequestHeaders, map[string]any{}, nil)
	assert.Equal(http.StatusServiceUnavailable, w.Code)

	var got response
	decodeEnvelope(assert, w, &got)
	assert.Equal([]string{"syncer: source store is unreachable"}, got.Errors)
}

func TestAsyncSync(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/sync", defaultTestRequestHeaders, map[string]any{"async": true, "dry_run": true}, nil)
	assert.Equal(http.StatusAccepted, w.Code)

	var started SyncStartedResponse
	decodeData(assert, w, &started)
	assert.NotEmpty(started.RunID)

	var run models.SyncRun
	assert.Eventually(func() bool {
		w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/sync/runs/"+started.RunID, nil, nil, nil)
		if w.Code != http.StatusOK {
			return false
		}
		decodeData(assert, w, &run)
		return run.Status == models.SyncStateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	assert.True(run.DryRun)
	assert.Equal(2, run.Synced)

	count, err := server.searchDB.Count(context.Background())
	assert.NoError(err)
	assert.Zero(count)
}

func TestGetUnknownSyncRun(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/sync/runs/unknown", nil, nil, nil)
	assert.Equal(http.StatusNotFound, w.Code)
}

func TestSyncStatus(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/sync/status", nil, nil, nil)
	assert.Equal(http.StatusOK, w.Code)

	var status models.SyncStatus
	decodeData(assert, w, &status)
	assert.True(status.SourceConnected)
	assert.True(status.IndexConnected)
	assert.Equal(3, status.TotalSourceRecords)
	assert.Nil(status.LastSyncTime)
	assert.True(status.SyncNeeded)

	syncTestRecords(server, assert)

	w = makeTestHTTPRequest(server.router, assert, http.MethodGet, "/sync/status", nil, nil, nil)
	assert.Equal(http.StatusOK, w.Code)
	decodeData(assert, w, &status)
	assert.NotNil(status.LastSyncTime)
	assert.Equal(uint64(2), status.TotalIndexedDocuments)
	// one source record is never indexed because it has no title
	assert.True(status.SyncNeeded)
}
