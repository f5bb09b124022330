package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores string values with a TTL
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key this cache owns
	Clear(ctx context.Context) error
}

// Factory creates a cache from config
type Factory func(config Config) (Cache, error)

var registry = make(map[string]Factory)

// RegisterCache registers a cache implementation
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache creates the configured cache, falling back to memory
func NewCache(config Config) (Cache, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryCache(config)
}

// Config is the cache section of the app config
type Config struct {
	Type            string        `mapstructure:"type"` // memory or redis
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // memory only
}

// DefaultConfig returns an in-memory cache with a one hour TTL
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		KeyPrefix:       "docx",
		DefaultTTL:      time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// GenerateCacheKey joins prefix and parts with ":"
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// HashKey digests free text such as a question into a fixed length key part
func HashKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:16])
}
