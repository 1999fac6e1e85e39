package popularity

import (
	"context"
	"time"

	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/db/redisdb"
	"github.com/meghashyamc/searchsync/models"
)

const (
	redisScoresKey = "popular:queries"
	redisTimesKey  = "popular:last_used"
)

type sortedSetStore interface {
	IncrementMember(ctx context.Context, setKey string, timesKey string, member string, at time.Time) (float64, error)
	TopMembers(ctx context.Context, setKey string, timesKey string, n int) ([]redisdb.ScoredMember, error)
}

// RedisCounter keeps counts in a sorted set and last-used times in a hash.
type RedisCounter struct {
	store sortedSetStore
}

func NewRedisCounter(store sortedSetStore) *RedisCounter {
	return &RedisCounter{store: store}
}

func (c *RedisCounter) Increment(ctx context.Context, query string, at time.Time) error {
	if _, err := c.store.IncrementMember(ctx, redisScoresKey, redisTimesKey, query, at); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "popularity.Increment", err)
	}
	return nil
}

func (c *RedisCounter) Top(ctx context.Context, limit int) ([]models.PopularQuery, error) {
	members, err := c.store.TopMembers(ctx, redisScoresKey, redisTimesKey, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "popularity.Top", err)
	}

	queries := make([]models.PopularQuery, len(members))
	for i, member := range members {
		queries[i] = models.PopularQuery{
			Query:    member.Member,
			Count:    int64(member.Score),
			LastUsed: member.LastSeen,
		}
	}

	return queries, nil
}
