package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const keyEnv = "ENV"
const envLocal = "local"

const (
	defaultPort                 = "8080"
	defaultIndexName            = "posts"
	defaultSyncBatchSize        = 50
	defaultSyncMaxRetries       = 3
	defaultSyncStalenessWindow  = 24 * time.Hour
	defaultLastSyncExpiry       = 30 * 24 * time.Hour
	defaultQueryTimeout         = 5 * time.Second
	defaultQueryMaxPageSize     = 100
	defaultQueryMaxResultWindow = 10000
	defaultKoreanRatioThreshold = 0.3
	defaultPopularityBackend    = "kvdb"
	defaultPopularityCacheTTL   = 60 * time.Second
	defaultSearchCacheTTL       = 300 * time.Second
	defaultAutocompleteCacheTTL = 600 * time.Second
	defaultFilterOptionsTTL     = 3600 * time.Second
	defaultLogLevel             = "info"
)

type Config struct {
	config *viper.Viper
}

type Boosts struct {
	Title       float64
	Topic       float64
	Description float64
	Content     float64
	Tags        float64
}

func Load() (*Config, error) {
	env := os.Getenv(keyEnv)
	if len(env) == 0 {
		env = envLocal
	}

	configPath, err := getConfigPath(env)

	viperConfig := viper.New()
	if err == nil {
		viperConfig.SetConfigFile(configPath)
		if err := viperConfig.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("error reading config file, %s", err))
		}
	}
	viperConfig.AutomaticEnv()

	cfg := &Config{
		config: viperConfig,
	}

	return cfg, nil
}

func (c *Config) GetEnv() string {
	env := os.Getenv(keyEnv)
	if len(env) == 0 {
		return envLocal
	}
	return env
}

func (c *Config) GetPort() string {
	port := c.config.GetString("PORT")
	if len(port) == 0 {
		port = c.config.GetString("server.port")
	}
	if len(port) == 0 {
		port = defaultPort
	}

	return port
}

func (c *Config) GetLogLevel() string {
	return c.getString("LOG_LEVEL", "log.level", defaultLogLevel)
}

func (c *Config) GetStoragePath() string {
	storagePath := c.config.GetString("STORAGE_PATH")
	if len(storagePath) == 0 {
		storagePath = c.config.GetString("database.storage_path")
	}

	return storagePath
}

func (c *Config) GetIndexName() string {
	return c.getString("INDEX_NAME", "database.index_name", defaultIndexName)
}

func (c *Config) GetKVDBPath() string {
	kvdbPath := c.config.GetString("KVDB_PATH")
	if len(kvdbPath) == 0 {
		kvdbPath = c.config.GetString("database.kvdb_path")
	}

	return kvdbPath
}

// GetSourceDatabaseURL returns the postgres DSN of the primary datastore.
func (c *Config) GetSourceDatabaseURL() string {
	return c.getString("DATABASE_URL", "source.database_url", "")
}

func (c *Config) GetRedisAddr() string {
	return c.getString("REDIS_ADDR", "redis.addr", "")
}

func (c *Config) GetRedisPassword() string {
	return c.getString("REDIS_PASSWORD", "redis.password", "")
}

func (c *Config) GetRedisDB() int {
	return c.getInt("REDIS_DB", "redis.db", 0)
}

func (c *Config) GetSyncBatchSize() int {
	return c.getInt("SYNC_BATCH_SIZE", "sync.batch_size", defaultSyncBatchSize)
}

func (c *Config) GetSyncMaxRetries() int {
	return c.getInt("SYNC_MAX_RETRIES", "sync.max_retries", defaultSyncMaxRetries)
}

func (c *Config) GetSyncStalenessWindow() time.Duration {
	return c.getDuration("SYNC_STALENESS_WINDOW", "sync.staleness_window", defaultSyncStalenessWindow)
}

func (c *Config) GetLastSyncExpiry() time.Duration {
	return c.getDuration("SYNC_LAST_SYNC_EXPIRY", "sync.last_sync_expiry", defaultLastSyncExpiry)
}

func (c *Config) GetQueryTimeout() time.Duration {
	return c.getDuration("QUERY_TIMEOUT", "query.timeout", defaultQueryTimeout)
}

func (c *Config) GetQueryMaxPageSize() int {
	return c.getInt("QUERY_MAX_PAGE_SIZE", "query.max_page_size", defaultQueryMaxPageSize)
}

func (c *Config) GetQueryMaxResultWindow() int {
	return c.getInt("QUERY_MAX_RESULT_WINDOW", "query.max_result_window", defaultQueryMaxResultWindow)
}

func (c *Config) GetQueryBoosts() Boosts {
	return Boosts{
		Title:       c.getFloat("QUERY_BOOST_TITLE", "query.boosts.title", 3.0),
		Topic:       c.getFloat("QUERY_BOOST_TOPIC", "query.boosts.topic", 2.0),
		Description: c.getFloat("QUERY_BOOST_DESCRIPTION", "query.boosts.description", 1.0),
		Content:     c.getFloat("QUERY_BOOST_CONTENT", "query.boosts.content", 1.0),
		Tags:        c.getFloat("QUERY_BOOST_TAGS", "query.boosts.tags", 1.0),
	}
}

func (c *Config) GetKoreanRatioThreshold() float64 {
	return c.getFloat("KOREAN_RATIO_THRESHOLD", "mapper.korean_ratio_threshold", defaultKoreanRatioThreshold)
}

// GetPopularityBackend is either "kvdb" or "redis".
func (c *Config) GetPopularityBackend() string {
	return c.getString("POPULARITY_BACKEND", "popularity.backend", defaultPopularityBackend)
}

func (c *Config) GetPopularityCacheTTL() time.Duration {
	return c.getDuration("POPULARITY_CACHE_TTL", "popularity.cache_ttl", defaultPopularityCacheTTL)
}

func (c *Config) GetSearchCacheTTL() time.Duration {
	return c.getDuration("CACHE_SEARCH_TTL", "cache.search_ttl", defaultSearchCacheTTL)
}

func (c *Config) GetAutocompleteCacheTTL() time.Duration {
	return c.getDuration("CACHE_AUTOCOMPLETE_TTL", "cache.autocomplete_ttl", defaultAutocompleteCacheTTL)
}

func (c *Config) GetFilterOptionsCacheTTL() time.Duration {
	return c.getDuration("CACHE_FILTER_OPTIONS_TTL", "cache.filter_options_ttl", defaultFilterOptionsTTL)
}

func (c *Config) getString(envKey string, yamlKey string, fallback string) string {
	value := c.config.GetString(envKey)
	if len(value) == 0 {
		value = c.config.GetString(yamlKey)
	}
	if len(value) == 0 {
		value = fallback
	}

	return value
}

func (c *Config) getInt(envKey string, yamlKey string, fallback int) int {
	for _, key := range []string{envKey, yamlKey} {
		if c.config.IsSet(key) {
			return c.config.GetInt(key)
		}
	}

	return fallback
}

func (c *Config) getFloat(envKey string, yamlKey string, fallback float64) float64 {
	for _, key := range []string{envKey, yamlKey} {
		if c.config.IsSet(key) {
			return c.config.GetFloat64(key)
		}
	}

	return fallback
}

func (c *Config) getDuration(envKey string, yamlKey string, fallback time.Duration) time.Duration {
	for _, key := range []string{envKey, yamlKey} {
		if c.config.IsSet(key) {
			return c.config.GetDuration(key)
		}
	}

	return fallback
}

func getProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		configDir := filepath.Join(currentDir, "config")
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)

		if parent == currentDir {
			break
		}

		currentDir = parent
	}

	return "", fmt.Errorf("could not find project root (directory containing 'config' folder)")
}

func getConfigPath(env string) (string, error) {
	configFile := fmt.Sprintf("config.%s.yaml", env)

	projectRoot, err := getProjectRoot()
	if err != nil {
		slog.Warn("failed to find project root with config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	configPath := filepath.Join(projectRoot, "config", configFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Warn("failed to find config file within config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	return configPath, nil
}
