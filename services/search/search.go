package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/db/searchdb"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/metrics"
	"github.com/meghashyamc/searchsync/models"
	"github.com/meghashyamc/searchsync/services/query"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultAutocompleteLimit = 10
	MaxAutocompleteLimit     = 20
	MaxAutocompletePrefix    = 100

	cacheSearch       = "search"
	cacheAutocomplete = "autocomplete"
	cacheFilters      = "filters"
)

type Index interface {
	Search(ctx context.Context, request *bleve.SearchRequest) (*searchdb.Result, error)
}

type FilterSource interface {
	DistinctCategories(ctx context.Context) []string
	DistinctTags(ctx context.Context) []string
}

type QueryRecorder interface {
	Record(ctx context.Context, query string) error
}

type Config struct {
	QueryTimeout         time.Duration
	SearchCacheTTL       time.Duration
	AutocompleteCacheTTL time.Duration
	FilterOptionsTTL     time.Duration
}

type Service struct {
	logger   logger.Logger
	builder  *query.Builder
	index    Index
	source   FilterSource
	recorder QueryRecorder
	cache    Cache
	metrics  *metrics.Metrics
	cfg      Config
	group    singleflight.Group
}

func New(logger logger.Logger, builder *query.Builder, index Index, source FilterSource, recorder QueryRecorder, cache Cache, m *metrics.Metrics, cfg Config) *Service {
	return &Service{
		logger:   logger,
		builder:  builder,
		index:    index,
		source:   source,
		recorder: recorder,
		cache:    cache,
		metrics:  m,
		cfg:      cfg,
	}
}

// Search runs a structured search. Engine failures are returned, never replaced by an empty result.
func (s *Service) Search(ctx context.Context, request models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()

	searchRequest, err := s.builder.Build(request)
	if err != nil {
		return nil, err
	}
	page, pageSize := s.builder.Page(request)

	if strings.TrimSpace(request.Query) != "" {
		// A failed count must not fail the search.
		_ = s.recorder.Record(ctx, request.Query)
	}

	key, err := cacheKey(cacheSearch, request)
	if err != nil {
		return nil, err
	}

	var response models.SearchResponse
	cacheStatus, err := s.cached(ctx, cacheSearch, key, s.cfg.SearchCacheTTL, &response, func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()

		result, err := s.index.Search(ctx, searchRequest)
		if err != nil {
			return nil, err
		}
		return buildResponse(result, page, pageSize), nil
	})

	s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("search failed", "query", request.Query, "err", err.Error())
		return nil, err
	}

	if response.Total == 0 {
		s.metrics.SearchQueriesTotal.WithLabelValues(metrics.ResultZeroResult).Inc()
	} else {
		s.metrics.SearchQueriesTotal.WithLabelValues(metrics.ResultHit).Inc()
	}

	return &response, nil
}

// Autocomplete suggests titles and tags that start with prefix. Engine failures yield no suggestions.
func (s *Service) Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || utf8.RuneCountInString(prefix) > MaxAutocompletePrefix {
		return nil, apperrors.Newf(apperrors.ErrValidation, "search.Autocomplete", "prefix must be between 1 and %d characters", MaxAutocompletePrefix)
	}
	if limit == 0 {
		limit = DefaultAutocompleteLimit
	}
	if limit < 1 || limit > MaxAutocompleteLimit {
		return nil, apperrors.Newf(apperrors.ErrValidation, "search.Autocomplete", "limit must be between 1 and %d", MaxAutocompleteLimit)
	}

	key, err := cacheKey(cacheAutocomplete, []any{strings.ToLower(prefix), limit})
	if err != nil {
		return nil, err
	}

	suggestions := []string{}
	_, err = s.cached(ctx, cacheAutocomplete, key, s.cfg.AutocompleteCacheTTL, &suggestions, func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()

		// Ask for more hits than needed since titles and tags are deduplicated.
		result, err := s.index.Search(ctx, s.builder.BuildAutocomplete(prefix, limit*3))
		if err != nil {
			return nil, err
		}
		return collectSuggestions(result, prefix, limit), nil
	})
	if err != nil {
		s.logger.Warn("autocomplete failed", "prefix", prefix, "err", err.Error())
		return []string{}, nil
	}

	return suggestions, nil
}

// InvalidateResults drops cached searches, suggestions and filter options. Call it after the index changes.
func (s *Service) InvalidateResults(ctx context.Context) {
	s.cache.Invalidate(ctx, cacheSearch+":", cacheAutocomplete+":", cacheFilters+":")
	s.logger.Info("invalidated cached search results")
}

// Categories lists distinct main categories from the source store.
func (s *Service) Categories(ctx context.Context) []string {
	return s.filterOptions(ctx, "categories", s.source.DistinctCategories)
}

func (s *Service) Tags(ctx context.Context) []string {
	return s.filterOptions(ctx, "tags", s.source.DistinctTags)
}

func (s *Service) filterOptions(ctx context.Context, name string, load func(ctx context.Context) []string) []string {
	options := []string{}
	_, err := s.cached(ctx, cacheFilters, cacheFilters+":"+name, s.cfg.FilterOptionsTTL, &options, func(ctx context.Context) (any, error) {
		values := load(ctx)
		if len(values) == 0 {
			// Empty lists are not cached so a recovered store shows up immediately.
			return values, errEmpty
		}
		return values, nil
	})
	if err != nil && !errors.Is(err, errEmpty) {
		s.logger.Warn("failed to load filter options", "name", name, "err", err.Error())
	}
	if options == nil {
		return []string{}
	}

	return options
}

var errEmpty = errors.New("empty result")

// cached decodes a cache hit into out, or runs load once per key across concurrent callers and caches its result.
func (s *Service) cached(ctx context.Context, cacheName string, key string, ttl time.Duration, out any, load func(ctx context.Context) (any, error)) (string, error) {
	if value, ok := s.cache.Get(ctx, key); ok {
		if err := json.Unmarshal([]byte(value), out); err == nil {
			s.metrics.CacheHitsTotal.WithLabelValues(cacheName).Inc()
			return "hit", nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", key)
	}
	s.metrics.CacheMissesTotal.WithLabelValues(cacheName).Inc()

	encoded, err, _ := s.group.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil && !errors.Is(err, errEmpty) {
			return nil, err
		}

		data, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to encode %s response: %w", cacheName, marshalErr)
		}
		if err == nil {
			s.cache.Set(ctx, key, string(data), ttl)
		}
		return string(data), err
	})
	if encoded == nil {
		return "miss", err
	}

	if decodeErr := json.Unmarshal([]byte(encoded.(string)), out); decodeErr != nil {
		return "miss", fmt.Errorf("failed to decode %s response: %w", cacheName, decodeErr)
	}

	return "miss", err
}

func cacheKey(prefix string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}

	sum := sha256.Sum256(data)
	return prefix + ":" + hex.EncodeToString(sum[:]), nil
}

func buildResponse(result *searchdb.Result, page int, pageSize int) *models.SearchResponse {
	response := &models.SearchResponse{
		Total:        result.Total,
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   totalPages(result.Total, pageSize),
		Partial:      result.Partial,
		Results:      make([]models.SearchHit, 0, len(result.Hits)),
		Aggregations: make(map[string][]models.FacetCount, len(result.Facets)),
	}

	for _, hit := range result.Hits {
		response.Results = append(response.Results, toSearchHit(hit))
	}

	for name, terms := range result.Facets {
		counts := make([]models.FacetCount, len(terms))
		for i, term := range terms {
			counts[i] = models.FacetCount{Term: term.Term, Count: term.Count}
		}
		response.Aggregations[name] = counts
	}

	return response
}

func totalPages(total uint64, pageSize int) int {
	if total == 0 || pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

func toSearchHit(hit searchdb.Hit) models.SearchHit {
	searchHit := models.SearchHit{
		ID:           hit.ID,
		Score:        hit.Score,
		Title:        stringField(hit.Fields, searchdb.FieldTitle),
		Topic:        stringField(hit.Fields, searchdb.FieldTopic),
		Description:  stringField(hit.Fields, searchdb.FieldDescription),
		MainCategory: stringField(hit.Fields, searchdb.FieldMainCategory),
		SubCategory:  stringField(hit.Fields, searchdb.FieldSubCategory),
		Tags:         stringsField(hit.Fields, searchdb.FieldTags),
		Language:     stringField(hit.Fields, searchdb.FieldLanguage),
		AuthorEmail:  stringField(hit.Fields, searchdb.FieldAuthorEmail),
		ViewCount:    int64(numberField(hit.Fields, searchdb.FieldViewCount)),
		LikeCount:    int64(numberField(hit.Fields, searchdb.FieldLikeCount)),
		ReadingTime:  int(numberField(hit.Fields, searchdb.FieldReadingTime)),
		ThumbnailURL: stringField(hit.Fields, searchdb.FieldThumbnailURL),
		UpdatedDate:  stringField(hit.Fields, searchdb.FieldUpdatedDate),
	}
	if len(hit.Fragments) > 0 {
		searchHit.Highlights = hit.Fragments
	}

	return searchHit
}

func stringField(fields map[string]any, name string) string {
	value, _ := fields[name].(string)
	return value
}

// stringsField handles bleve returning a lone value for single-element arrays.
func stringsField(fields map[string]any, name string) []string {
	switch value := fields[name].(type) {
	case string:
		return []string{value}
	case []any:
		values := make([]string, 0, len(value))
		for _, v := range value {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
		return values
	default:
		return nil
	}
}

func numberField(fields map[string]any, name string) float64 {
	value, _ := fields[name].(float64)
	return value
}

func collectSuggestions(result *searchdb.Result, prefix string, limit int) []string {
	lowered := strings.ToLower(prefix)
	seen := make(map[string]bool)
	suggestions := []string{}

	add := func(candidate string) {
		key := strings.ToLower(candidate)
		if len(suggestions) >= limit || seen[key] || !strings.HasPrefix(key, lowered) {
			return
		}
		seen[key] = true
		suggestions = append(suggestions, candidate)
	}

	for _, hit := range result.Hits {
		add(stringField(hit.Fields, searchdb.FieldTitle))
		for _, tag := range stringsField(hit.Fields, searchdb.FieldTags) {
			add(tag)
		}
	}

	return suggestions
}
