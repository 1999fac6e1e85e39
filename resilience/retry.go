package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/logger"
)

type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// Retry runs fn until it succeeds, fails permanently, or MaxRetries retries have been spent.
// Only connectivity failures are retried.
func Retry(ctx context.Context, cfg RetryConfig, logger logger.Logger, op string, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.Multiplier = cfg.Multiplier

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(max(cfg.MaxRetries, 0)+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying after transient failure", "op", op, "attempt", attempt, "next_in", next.String(), "err", err.Error())
		}),
	)

	return err
}

func IsTransient(err error) bool {
	return errors.Is(err, apperrors.ErrEngineUnavailable) || errors.Is(err, apperrors.ErrStoreUnavailable)
}
