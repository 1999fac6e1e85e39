package redisdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Client wraps a go-redis client.
type Client struct {
	rdb    *redis.Client
	logger logger.Logger
}

// ScoredMember is a sorted-set member with the timestamp recorded alongside it.
type ScoredMember struct {
	Member   string
	Score    float64
	LastSeen time.Time
}

// New connects to the configured redis and verifies the connection with a PING.
func New(logger logger.Logger, cfg *config.Config) (*Client, error) {
	return Open(logger, &redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})
}

func Open(logger logger.Logger, options *redis.Options) (*Client, error) {
	rdb := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		logger.Error("redis ping failed", "addr", options.Addr, "err", err.Error())
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, logger: logger}, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// FlushByPattern deletes every key matching the glob pattern and returns how many were removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.Del(ctx, iter.Val()); err != nil {
			return deleted, fmt.Errorf("deleting key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	return deleted, nil
}

// IncrementMember bumps member's score in setKey and records at in timesKey, in one MULTI/EXEC.
func (c *Client) IncrementMember(ctx context.Context, setKey string, timesKey string, member string, at time.Time) (float64, error) {
	var incr *redis.FloatCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.ZIncrBy(ctx, setKey, 1, member)
		pipe.HSet(ctx, timesKey, member, at.UnixNano())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incrementing %s in %s: %w", member, setKey, err)
	}

	return incr.Val(), nil
}

// TopMembers returns at least the n highest scored members, plus every member tied with the nth score.
func (c *Client) TopMembers(ctx context.Context, setKey string, timesKey string, n int) ([]ScoredMember, error) {
	top, err := c.rdb.ZRevRangeWithScores(ctx, setKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading top members of %s: %w", setKey, err)
	}
	if len(top) == 0 {
		return []ScoredMember{}, nil
	}

	cutoff := top[len(top)-1].Score
	candidates, err := c.rdb.ZRevRangeByScoreWithScores(ctx, setKey, &redis.ZRangeBy{
		Min: strconv.FormatFloat(cutoff, 'f', -1, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading members of %s: %w", setKey, err)
	}

	members := make([]string, len(candidates))
	for i, candidate := range candidates {
		members[i] = fmt.Sprint(candidate.Member)
	}

	times, err := c.rdb.HMGet(ctx, timesKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading timestamps of %s: %w", timesKey, err)
	}

	scored := make([]ScoredMember, len(candidates))
	for i, candidate := range candidates {
		scored[i] = ScoredMember{Member: members[i], Score: candidate.Score}
		if raw, ok := times[i].(string); ok {
			if nanos, err := strconv.ParseInt(raw, 10, 64); err == nil {
				scored[i].LastSeen = time.Unix(0, nanos).UTC()
			}
		}
	}

	return scored, nil
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
