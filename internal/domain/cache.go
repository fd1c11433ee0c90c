package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `mapstructure:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `mapstructure:"local_max_size"`
	LocalTTL     time.Duration `mapstructure:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `mapstructure:"enable_two_phase"` // If true, check local first, then Redis

	// ProfileTTL bounds how stale a cached party profile may be.
	ProfileTTL time.Duration `mapstructure:"profile_ttl"`
}
