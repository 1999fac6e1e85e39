package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/db/kvdb"
	"github.com/meghashyamc/searchsync/db/redisdb"
	"github.com/meghashyamc/searchsync/db/searchdb"
	"github.com/meghashyamc/searchsync/db/sourcedb"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/metrics"
	"github.com/meghashyamc/searchsync/resilience"
	"github.com/meghashyamc/searchsync/services/health"
	"github.com/meghashyamc/searchsync/services/mapper"
	"github.com/meghashyamc/searchsync/services/popularity"
	"github.com/meghashyamc/searchsync/services/query"
	"github.com/meghashyamc/searchsync/services/search"
	"github.com/meghashyamc/searchsync/services/syncer"
	"github.com/meghashyamc/searchsync/validation"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies holds every store and service a command needs.
type Dependencies struct {
	Config    *config.Config
	Logger    logger.Logger
	KVDB      *kvdb.BoltDB
	SearchDB  *searchdb.BleveDB
	SourceDB  *sourcedb.PostgresDB
	Redis     *redisdb.Client
	Metrics   *metrics.Metrics
	Validator *validation.Validator

	Search     *search.Service
	Popularity *popularity.Tracker
	Syncer     *syncer.Service
	Health     *health.Service
}

// OpenDependencies opens every store. Redis is optional: without an address the caches stay in process.
// The sync worker stops when ctx is done.
func OpenDependencies(ctx context.Context, cfg *config.Config, logger logger.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger}

	var err error
	d.KVDB, err = kvdb.New(logger, cfg)
	if err != nil {
		logger.Error("error creating kvDB", "err", err.Error())
		return nil, err
	}

	d.SearchDB, err = searchdb.New(logger, cfg)
	if err != nil {
		logger.Error("error creating searchDB", "err", err.Error())
		d.Close()
		return nil, err
	}

	d.SourceDB, err = sourcedb.New(ctx, logger, cfg)
	if err != nil {
		logger.Error("error creating sourceDB", "err", err.Error())
		d.Close()
		return nil, err
	}

	if cfg.GetRedisAddr() != "" {
		d.Redis, err = redisdb.New(logger, cfg)
		if err != nil {
			logger.Warn("redis is unavailable, falling back to in-process caches", "err", err.Error())
			d.Redis = nil
		}
	}

	d.Validator, err = validation.New(logger)
	if err != nil {
		logger.Error("error creating validator", "err", err.Error())
		d.Close()
		return nil, err
	}

	builder, err := query.New(cfg.GetQueryBoosts(), cfg.GetQueryMaxPageSize(), cfg.GetQueryMaxResultWindow())
	if err != nil {
		logger.Error("error creating query builder", "err", err.Error())
		d.Close()
		return nil, err
	}

	counter, err := d.popularityCounter()
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Metrics = metrics.New(prometheus.NewRegistry())
	d.Popularity = popularity.New(logger, counter, cfg.GetPopularityCacheTTL())
	d.Search = search.New(logger, builder, d.SearchDB, d.SourceDB, d.Popularity, d.cache(), d.Metrics, search.Config{
		QueryTimeout:         cfg.GetQueryTimeout(),
		SearchCacheTTL:       cfg.GetSearchCacheTTL(),
		AutocompleteCacheTTL: cfg.GetAutocompleteCacheTTL(),
		FilterOptionsTTL:     cfg.GetFilterOptionsCacheTTL(),
	})
	d.Syncer = syncer.New(ctx, logger, d.SourceDB, d.SearchDB, mapper.New(cfg.GetKoreanRatioThreshold()), d.KVDB, d.Metrics, syncer.Config{
		Retry:           resilience.DefaultRetryConfig(cfg.GetSyncMaxRetries()),
		StalenessWindow: cfg.GetSyncStalenessWindow(),
		LastSyncExpiry:  cfg.GetLastSyncExpiry(),
		Invalidator:     d.Search,
	})

	var cacheChecker health.Checker
	if d.Redis != nil {
		cacheChecker = health.PingerFunc(d.Redis.Ping)
	}
	d.Health = health.New(logger, d.SourceDB, d.SearchDB, cacheChecker)

	return d, nil
}

func (d *Dependencies) popularityCounter() (popularity.Counter, error) {
	switch backend := d.Config.GetPopularityBackend(); backend {
	case popularity.BackendKVDB:
		return popularity.NewKVDBCounter(d.KVDB), nil
	case popularity.BackendRedis:
		if d.Redis == nil {
			return nil, errors.New("popularity backend is redis but redis is not available")
		}
		return popularity.NewRedisCounter(d.Redis), nil
	default:
		return nil, fmt.Errorf("unknown popularity backend %q", backend)
	}
}

func (d *Dependencies) cache() search.Cache {
	if d.Redis != nil {
		return search.NewRedisCache(d.Logger, d.Redis)
	}
	return search.NewLocalCache()
}

// Close releases every opened store. It is safe to call on partially opened dependencies.
func (d *Dependencies) Close() {
	if d.SearchDB != nil {
		if err := d.SearchDB.Close(); err != nil {
			d.Logger.Error("error closing searchDB", "err", err.Error())
		}
	}
	if d.KVDB != nil {
		if err := d.KVDB.Close(); err != nil {
			d.Logger.Error("error closing kvDB", "err", err.Error())
		}
	}
	if d.SourceDB != nil {
		d.SourceDB.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("error closing redis", "err", err.Error())
		}
	}
}
