// Common test helpers
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/db/kvdb"
	"github.com/meghashyamc/searchsync/db/searchdb"
	"github.com/meghashyamc/searchsync/db/sourcedb"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/metrics"
	"github.com/meghashyamc/searchsync/models"
	"github.com/meghashyamc/searchsync/resilience"
	"github.com/meghashyamc/searchsync/services/health"
	"github.com/meghashyamc/searchsync/services/mapper"
	"github.com/meghashyamc/searchsync/services/popularity"
	"github.com/meghashyamc/searchsync/services/query"
	"github.com/meghashyamc/searchsync/services/search"
	"github.com/meghashyamc/searchsync/services/syncer"
	"github.com/meghashyamc/searchsync/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var defaultTestRequestHeaders = map[string]string{"Content-Type": "application/json"}

var testRecords = []models.SourceRecord{
	{
		ID: "p1", Title: "Django Tutorial", Content: json.RawMessage(`"Django is great"`),
		MainCategory: "Backend", Tags: []string{"Django", "Python"}, IsPublished: true,
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	},
	{
		ID: "p2", Title: "React Hooks", Content: json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"text":"State in React"}]}]}`),
		MainCategory: "Frontend", Tags: []string{"React"}, IsPublished: true,
		UpdatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	},
	{
		ID: "p3", Title: "", Content: json.RawMessage(`"untitled draft"`),
		MainCategory: "Backend", IsPublished: true,
		UpdatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	},
}

type testCase struct {
	name             string
	requestHeaders   map[string]string
	requestBody      map[string]any
	queryParams      map[string]string
	expectedStatus   int
	expectedResponse *response
}

// memorySource is a source store backed by a slice.
type memorySource struct {
	records []models.SourceRecord
	down    bool
	broken  bool
	calls   int
}

type sliceIterator struct {
	records   []models.SourceRecord
	batchSize int
}

func (it *sliceIterator) Next(ctx context.Context) ([]models.SourceRecord, error) {
	n := min(it.batchSize, len(it.records))
	batch := it.records[:n]
	it.records = it.records[n:]
	return batch, nil
}

func (m *memorySource) CountRecords(ctx context.Context, filter sourcedb.Filter) (int, error) {
	m.calls++
	return len(m.records), nil
}

func (m *memorySource) IterateAll(batchSize int, publishedOnly bool) sourcedb.RecordIterator {
	m.calls++
	return &sliceIterator{records: m.records, batchSize: batchSize}
}

func (m *memorySource) IterateModifiedSince(since time.Time, batchSize int, publishedOnly bool) sourcedb.RecordIterator {
	m.calls++
	var modified []models.SourceRecord
	for _, record := range m.records {
		if !record.UpdatedAt.Before(since) {
			modified = append(modified, record)
		}
	}
	return &sliceIterator{records: modified, batchSize: batchSize}
}

func (m *memorySource) CheckConnection(ctx context.Context) bool {
	m.calls++
	if m.broken {
		panic("connection check crashed")
	}
	return !m.down
}

func (m *memorySource) DistinctCategories(ctx context.Context) []string {
	m.calls++
	return []string{"Backend", "Frontend"}
}

func (m *memorySource) DistinctTags(ctx context.Context) []string {
	m.calls++
	return []string{"Django", "Python", "React"}
}

type testServer struct {
	router   *gin.Engine
	source   *memorySource
	searchDB *searchdb.BleveDB
	syncer   *syncer.Service
}

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func setupTestServer(t *testing.T, assert *require.Assertions) *testServer {

	t.Setenv("ENV", "test")

	cfg, err := config.Load()
	assert.NoError(err, "could not load config")

	testLogger := newTestLogger()
	tempDir := t.TempDir()

	searchDB, err := searchdb.Open(testLogger, filepath.Join(tempDir, "index"), cfg.GetIndexName())
	assert.NoError(err, "could not create search database")

	kvDB, err := kvdb.Open(testLogger, filepath.Join(tempDir, "meta.db"))
	assert.NoError(err, "could not create kv database")

	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	builder, err := query.New(cfg.GetQueryBoosts(), cfg.GetQueryMaxPageSize(), cfg.GetQueryMaxResultWindow())
	assert.NoError(err, "could not create query builder")

	ctx, cancel := context.WithCancel(context.Background())
	source := &memorySource{records: testRecords}
	m := metrics.New(prometheus.NewRegistry())
	tracker := popularity.New(testLogger, popularity.NewKVDBCounter(kvDB), cfg.GetPopularityCacheTTL())

	searchService := search.New(testLogger, builder, searchDB, source, tracker, search.NewLocalCache(), m, search.Config{
		QueryTimeout:         cfg.GetQueryTimeout(),
		SearchCacheTTL:       cfg.GetSearchCacheTTL(),
		AutocompleteCacheTTL: cfg.GetAutocompleteCacheTTL(),
		FilterOptionsTTL:     cfg.GetFilterOptionsCacheTTL(),
	})
	syncService := syncer.New(ctx, testLogger, source, searchDB, mapper.New(cfg.GetKoreanRatioThreshold()), kvDB, m, syncer.Config{
		Retry:           resilience.DefaultRetryConfig(cfg.GetSyncMaxRetries()),
		StalenessWindow: cfg.GetSyncStalenessWindow(),
		LastSyncExpiry:  cfg.GetLastSyncExpiry(),
		Invalidator:     searchService,
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()

	SetupSearch(router, testLogger, searchService, validator)
	SetupPopular(router, testLogger, tracker, validator)
	SetupSync(router, testLogger, syncService, validator)
	SetupIndex(router, testLogger, searchDB, searchService, cfg.GetIndexName())
	SetupHealth(router, health.New(testLogger, source, searchDB, nil))

	t.Cleanup(func() {
		cancel()
		assert.NoError(searchDB.Close(), "could not close search database")
		assert.NoError(kvDB.Close(), "could not close kv database")
	})

	return &testServer{router: router, source: source, searchDB: searchDB, syncer: syncService}
}

// syncTestRecords runs a full sync through the API so searches have data.
func syncTestRecords(server *testServer, assert *require.Assertions) {
	w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/sync", defaultTestRequestHeaders, map[string]any{}, nil)
	assert.Equal(http.StatusOK, w.Code)
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]interface{}, queryParams map[string]string) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		endpoint = endpoint + "?"
		for key, value := range queryParams {
			if endpoint[len(endpoint)-1] != '?' {
				endpoint = endpoint + "&"
			}
			endpoint = endpoint + key + "=" + value
		}
	}
	var jsonBody []byte
	var req *http.Request
	if requestBodyMap != nil {
		jsonBody, err = json.Marshal(requestBodyMap)
		assert.NoError(err)
	}

	slog.Info("Making test request", "method", method, "endpoint", endpoint, "headers", headers, "body", string(jsonBody))

	if len(jsonBody) > 0 {
		req, err = http.NewRequest(method, endpoint, bytes.NewBuffer(jsonBody))
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(w, req)

	return w
}

// decodeData unmarshals the data field of a response envelope into out.
func decodeData(assert *require.Assertions, w *httptest.ResponseRecorder, out any) {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []string        `json:"errors"`
	}
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.NoError(json.Unmarshal(envelope.Data, out))
}

func decodeEnvelope(assert *require.Assertions, w *httptest.ResponseRecorder, out *response) {
	assert.NoError(json.Unmarshal(w.Body.Bytes(), out))
}
