// Package cache stores loader pipeline results between runs. Results are
// keyed by loader.CacheKey and validated against the content hashes of the
// files they were built from, so an edited resource never serves a stale
// result.
package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/config"
)

// Store is the interface for cache storage backends:
//   - Memory: a single process, lost on exit
//   - Filesystem: content-addressed objects under a cache directory
//   - Redis: shared between machines, entries expire after a TTL
type Store interface {
	// Get returns the value stored under key. A missing key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store's resources.
	Close() error
}

// NewStore creates the store selected by cfg.Type. fs backs the
// filesystem store. "none" and "" return a nil Store, which New treats as
// caching disabled.
func NewStore(ctx context.Context, cfg config.CacheConfig, fs afero.Fs, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "none", "":
		logger.Debug().Msg("loader cache disabled")
		return nil, nil

	case "memory":
		logger.Debug().Msg("using in-memory loader cache")
		return NewMemoryStore(), nil

	case "filesystem":
		if cfg.Directory == "" {
			return nil, fmt.Errorf("cache.directory is required for the filesystem cache")
		}
		logger.Debug().Str("directory", cfg.Directory).Msg("using filesystem loader cache")
		return NewFilesystemStore(fs, cfg.Directory)

	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("cache.redis.addr is required for the redis cache")
		}
		store, err := NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Debug().Str("addr", cfg.Redis.Addr).Msg("using redis loader cache")
		return store, nil

	default:
		return nil, fmt.Errorf("unknown cache type: %s (valid options: none, memory, filesystem, redis)", cfg.Type)
	}
}
