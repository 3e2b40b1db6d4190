package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Backend names accepted by the cache.backend setting.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a cache backend.
type Config struct {
	Backend string
	DBFile  string
	Redis   RedisConfig
}

// ConfigFromViper reads the cache.* settings.
func ConfigFromViper() Config {
	dbPath := viper.GetString("cache.dbfile")
	if dbPath == "" {
		dbPath = "./cache.db"
	}

	return Config{
		Backend: viper.GetString("cache.backend"),
		DBFile:  dbPath,
		Redis: RedisConfig{
			Addr:     viper.GetString("cache.redis.addr"),
			Username: viper.GetString("cache.redis.username"),
			Password: viper.GetString("cache.redis.password"),
			DB:       viper.GetInt("cache.redis.db"),
			Prefix:   viper.GetString("cache.redis.prefix"),
		},
	}
}

// Open creates the store for cfg.Backend. An empty backend means SQLite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", BackendSQLite:
		slog.Debug("Opening cache database", "path", cfg.DBFile)
		return NewCacheDB(cfg.DBFile)
	case BackendRedis:
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("cache.redis.addr must be set for the redis backend")
		}
		slog.Debug("Connecting to Redis cache", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return NewRedisStore(ctx, cfg.Redis)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// OpenFromConfig opens the store described by the current viper settings.
func OpenFromConfig(ctx context.Context) (Store, error) {
	return Open(ctx, ConfigFromViper())
}
