// Package popularity counts search queries and serves the most frequent ones.
package popularity

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/models"
)

const (
	BackendKVDB  = "kvdb"
	BackendRedis = "redis"
)

// cacheSize bounds the number of distinct limits cached at once.
const cacheSize = 64

// Counter is the storage behind a Tracker. Increment must be atomic per query.
type Counter interface {
	Increment(ctx context.Context, query string, at time.Time) error
	Top(ctx context.Context, limit int) ([]models.PopularQuery, error)
}

type Tracker struct {
	counter Counter
	cache   *expirable.LRU[int, []models.PopularQuery]
	logger  logger.Logger
	now     func() time.Time
}

func New(logger logger.Logger, counter Counter, cacheTTL time.Duration) *Tracker {
	return &Tracker{
		counter: counter,
		cache:   expirable.NewLRU[int, []models.PopularQuery](cacheSize, nil, cacheTTL),
		logger:  logger,
		now:     time.Now,
	}
}

// Normalize folds a query to the key it is counted under.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Record counts one occurrence of query. Blank queries are ignored.
func (t *Tracker) Record(ctx context.Context, query string) error {
	key := Normalize(query)
	if key == "" {
		return nil
	}

	if err := t.counter.Increment(ctx, key, t.now().UTC()); err != nil {
		t.logger.Warn("failed to record popular query", "query", key, "err", err.Error())
		return err
	}

	return nil
}

// TopN returns up to limit queries ordered by count, then recency, then text.
// Backend failures yield an empty list.
func (t *Tracker) TopN(ctx context.Context, limit int) ([]models.PopularQuery, error) {
	if limit <= 0 {
		return nil, apperrors.Newf(apperrors.ErrValidation, "popularity.TopN", "limit must be positive, got %d", limit)
	}

	if cached, ok := t.cache.Get(limit); ok {
		return cached, nil
	}

	queries, err := t.counter.Top(ctx, limit)
	if err != nil {
		t.logger.Warn("failed to read popular queries", "err", err.Error())
		return []models.PopularQuery{}, nil
	}

	ranked := rank(queries, limit)
	t.cache.Add(limit, ranked)

	return ranked, nil
}

func rank(queries []models.PopularQuery, limit int) []models.PopularQuery {
	ranked := make([]models.PopularQuery, len(queries))
	copy(ranked, queries)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		if !ranked[i].LastUsed.Equal(ranked[j].LastUsed) {
			return ranked[i].LastUsed.After(ranked[j].LastUsed)
		}
		return ranked[i].Query < ranked[j].Query
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return ranked
}
