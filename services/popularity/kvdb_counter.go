package popularity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/db/kvdb"
	"github.com/meghashyamc/searchsync/models"
)

type counterValue struct {
	Count    int64     `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

// KVDBCounter keeps one JSON counter per query in the popularity bucket.
type KVDBCounter struct {
	kvDB kvdb.DB
}

func NewKVDBCounter(kvDB kvdb.DB) *KVDBCounter {
	return &KVDBCounter{kvDB: kvDB}
}

func (c *KVDBCounter) Increment(ctx context.Context, query string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.kvDB.Update(kvdb.PopularityBucket, query, func(current string, found bool) (string, error) {
		value := counterValue{}
		if found {
			if err := json.Unmarshal([]byte(current), &value); err != nil {
				return "", fmt.Errorf("failed to decode counter for %q: %w", query, err)
			}
		}
		value.Count++
		value.LastUsed = at

		encoded, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "popularity.Increment", err)
	}

	return nil
}

// Top returns every counter; the tracker ranks and truncates.
func (c *KVDBCounter) Top(ctx context.Context, limit int) ([]models.PopularQuery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queries := []models.PopularQuery{}
	err := c.kvDB.ForEach(kvdb.PopularityBucket, func(key string, raw string) error {
		var value counterValue
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("failed to decode counter for %q: %w", key, err)
		}
		queries = append(queries, models.PopularQuery{Query: key, Count: value.Count, LastUsed: value.LastUsed})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "popularity.Top", err)
	}

	return queries, nil
}
