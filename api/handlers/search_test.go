package handlers

import (
	"net/http"
	"testing"

	"github.com/meghashyamc/searchsync/models"
	"github.com/stretchr/testify/require"
)

func TestSearchValidation(t *testing.T) {
	testCases := []testCase{
		{
			name:             "sort is not supported",
			queryParams:      map[string]string{"query": "django", "sort": "random"},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"sort must be one of relevance, date_desc, date_asc, views_desc, likes_desc"}},
		},
		{
			name:             "language is not supported",
			queryParams:      map[string]string{"language": "fr"},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"language must be one of ko, en, all"}},
		},
		{
			name:             "date range is inverted",
			queryParams:      map[string]string{"date_from": "2024-02-01", "date_to": "2024-01-01"},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"date_from must not be after date_to"}},
		},
		{
			name:             "too many tags",
			queryParams:      map[string]string{"tags": "a,b,c,d,e,f,g,h,i,j,k"},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"at most 10 tags are allowed"}},
		},
		{
			name:             "page size is too large",
			queryParams:      map[string]string{"page_size": "101"},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"value or length of field 'page_size' is not in the expected range"}},
		},
		{
			name:             "page is not a number",
			queryParams:      map[string]string{"page": "first"},
			expectedStatus:   http.StatusUnprocessableEntity,
			expectedResponse: &response{Errors: []string{"failed to extract request parameters"}},
		},
		{
			name:             "page is beyond the result window",
			queryParams:      map[string]string{"page": "200", "page_size": "100"},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"query.Build: page 200 is beyond the maximum result window of 10000"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			server := setupTestServer(t, assert)

			w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", tc.requestHeaders, tc.requestBody, tc.queryParams)
			assert.Equal(tc.expectedStatus, w.Code)

			var got response
			decodeEnvelope(assert, w, &got)
			assert.Equal(tc.expectedResponse.Errors, got.Errors)
			assert.Nil(got.Data)
		})
	}
}

func TestSearchAfterSync(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)
	syncTestRecords(server, assert)

	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", nil, nil, map[string]string{"query": "Django", "category": "Backend"})
	assert.Equal(http.StatusOK, w.Code)
	assert.Equal("1", w.Header().Get(HeaderPaginationTotalCount))

	var results models.SearchResponse
	decodeData(assert, w, &results)
	assert.Equal(uint64(1), results.Total)
	assert.Equal(1, results.TotalPages)
	assert.Equal(defaultResultsPerPage, results.PageSize)
	assert.Equal("p1", results.Results[0].ID)
	assert.Equal([]string{"Django", "Python"}, results.Results[0].Tags)

	w = makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", nil, nil, map[string]string{"query": "Django", "category": "Frontend"})
	assert.Equal(http.StatusOK, w.Code)
	decodeData(assert, w, &results)
	assert.Zero(results.Total)
	assert.Zero(results.TotalPages)
	assert.Empty(results.Results)
}

func TestSearchRichContent(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)
	syncTestRecords(server, assert)

	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", nil, nil, map[string]string{"query": "state", "sort": "date_desc"})
	assert.Equal(http.StatusOK, w.Code)

	var results models.SearchResponse
	decodeData(assert, w, &results)
	assert.Equal(uint64(1), results.Total)
	assert.Equal("p2", results.Results[0].ID)
	assert.Equal(models.LanguageEnglish, results.Results[0].Language)
}

func TestAutocomplete(t *testing.T) {
	testCases := []testCase{
		{
			name:             "prefix is missing",
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"missing required field 'q'"}},
		},
		{
			name:             "limit is too large",
			queryParams:      map[string]string{"q": "dj", "limit": "21"},
			expectedStatus:   http.StatusNotAcceptable,
			expectedResponse: &response{Errors: []string{"value or length of field 'limit' is not in the expected range"}},
		},
		{
			name:             "prefix matches titles and tags",
			queryParams:      map[string]string{"q": "dja"},
			expectedStatus:   http.StatusOK,
			expectedResponse: &response{Data: map[string]any{"suggestions": []any{"Django Tutorial", "Django"}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			server := setupTestServer(t, assert)
			syncTestRecords(server, assert)

			w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/autocomplete", tc.requestHeaders, tc.requestBody, tc.queryParams)
			assert.Equal(tc.expectedStatus, w.Code)

			var got response
			decodeEnvelope(assert, w, &got)
			assert.Equal(*tc.expectedResponse, got)
		})
	}
}

func TestFilterOptions(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/categories", nil, nil, nil)
	assert.Equal(http.StatusOK, w.Code)
	var options FilterOptionsResponse
	decodeData(assert, w, &options)
	assert.Equal([]string{"Backend", "Frontend"}, options.Values)

	w = makeTestHTTPRequest(server.router, assert, http.MethodGet, "/tags", nil, nil, nil)
	assert.Equal(http.StatusOK, w.Code)
	decodeData(assert, w, &options)
	assert.Equal([]string{"Django", "Python", "React"}, options.Values)
}
