// Package cache holds short-lived values such as the current quote per
// symbol. Two drivers share one interface: an in-process map and Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/config"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache stores byte values with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Health(ctx context.Context) error
	Close() error
}

// Key joins prefix and parts with ':'.
func Key(prefix string, parts ...string) string {
	if prefix == "" {
		return strings.Join(parts, ":")
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// New builds the cache selected by cfg.Driver.
func New(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", config.CacheDriverMemory:
		return NewMemory(), nil
	case config.CacheDriverRedis:
		return NewRedis(ctx, cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
