// Package cache is an optional Redis-backed cache of BackendCapabilities and
// ListKeys results, shared across processes that point at the same
// BackendRegistry configuration (e.g. a fleet of edge signers behind one
// software HSM directory plus a shared AWS KMS backend). It is grounded on
// the teacher's pkg/persistence/redis (schema-versioned keys, key-prefix
// namespacing, pipelined writes) but scoped to two read-mostly value types
// instead of a full persistence interface.
//
// It never caches backend.BackendInfo.Available: hardware/cloud
// availability is a racy, point-in-time snapshot that must be re-checked on
// every call, not served stale from a shared cache. Every Registry works
// identically with a nil *Cache; callers that skip this package lose only
// the round-trip savings, never correctness.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
)

const (
	keyPrefixCapabilities = "registry:caps:"
	keyPrefixListKeys     = "registry:keys:"
	keySchemaVersion      = "registry:schema_version"
	currentSchemaVersion  = "v1"
)

// Config holds the configuration for connecting to the shared cache.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the optional Redis password.
	Password string
	// DB is the Redis database number.
	DB int
	// TTL controls how long a cached entry remains valid. Zero means the
	// package default (5 minutes) is used.
	TTL time.Duration
	// KeyPrefix optionally namespaces all keys, for multi-tenant setups.
	KeyPrefix string

	Logger *zap.Logger
}

const defaultTTL = 5 * time.Minute

// Cache is a thin, schema-versioned wrapper around a Redis client. The zero
// value is not usable; construct with New.
type Cache struct {
	client    *redis.Client
	logger    *zap.Logger
	ttl       time.Duration
	keyPrefix string
}

// New connects to Redis and validates the cache schema. Like the teacher's
// NewRedisPersistence, it proves connectivity up front with a bounded ping
// rather than deferring the failure to the first cache operation.
func New(cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("registry cache: redis address cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("registry cache: failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	c := &Cache{client: client, logger: logger, ttl: ttl, keyPrefix: cfg.KeyPrefix}
	if err := c.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Sugar().Infow("registry cache initialized", "address", cfg.Addr, "ttl", ttl)
	return c, nil
}

func (c *Cache) prefixKey(key string) string {
	if c.keyPrefix == "" {
		return key
	}
	return c.keyPrefix + key
}

func (c *Cache) initSchema(ctx context.Context) error {
	schemaKey := c.prefixKey(keySchemaVersion)
	existing, err := c.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return c.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("registry cache: failed to read schema version: %w", err)
	}
	if existing != currentSchemaVersion {
		return fmt.Errorf("registry cache: unsupported schema version %s (expected %s)", existing, currentSchemaVersion)
	}
	return nil
}

// capabilitiesKey and listKeysKey are namespaced by entry type (via their
// prefixes) and backend name only; neither varies by operation kind.
func capabilitiesKey(backendName string) string {
	return keyPrefixCapabilities + backendName
}

func listKeysKey(backendName string) string {
	return keyPrefixListKeys + backendName
}

// PutCapabilities caches caps for backendName with the configured TTL.
func (c *Cache) PutCapabilities(ctx context.Context, backendName string, caps backend.BackendCapabilities) error {
	data, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("registry cache: failed to marshal capabilities: %w", err)
	}
	key := c.prefixKey(capabilitiesKey(backendName))
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// GetCapabilities returns the cached capabilities for backendName, or
// ok=false on a cache miss or expiry.
func (c *Cache) GetCapabilities(ctx context.Context, backendName string) (caps backend.BackendCapabilities, ok bool, err error) {
	key := c.prefixKey(capabilitiesKey(backendName))
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return backend.BackendCapabilities{}, false, nil
	}
	if err != nil {
		return backend.BackendCapabilities{}, false, fmt.Errorf("registry cache: failed to read capabilities: %w", err)
	}
	if err := json.Unmarshal(data, &caps); err != nil {
		return backend.BackendCapabilities{}, false, fmt.Errorf("registry cache: failed to unmarshal capabilities: %w", err)
	}
	return caps, true, nil
}

// PutListKeys caches the key metadata list for backendName.
func (c *Cache) PutListKeys(ctx context.Context, backendName string, keys []backend.KeyMetadata) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("registry cache: failed to marshal key list: %w", err)
	}
	key := c.prefixKey(listKeysKey(backendName))
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// GetListKeys returns the cached key metadata list for backendName, or
// ok=false on a cache miss or expiry.
func (c *Cache) GetListKeys(ctx context.Context, backendName string) (keys []backend.KeyMetadata, ok bool, err error) {
	key := c.prefixKey(listKeysKey(backendName))
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("registry cache: failed to read key list: %w", err)
	}
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, false, fmt.Errorf("registry cache: failed to unmarshal key list: %w", err)
	}
	return keys, true, nil
}

// Invalidate drops both cached entries for backendName, e.g. after a
// GenerateKeyPair changes what ListKeys would return.
func (c *Cache) Invalidate(ctx context.Context, backendName string) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, c.prefixKey(capabilitiesKey(backendName)))
	pipe.Del(ctx, c.prefixKey(listKeysKey(backendName)))
	_, err := pipe.Exec(ctx)
	return err
}

// Close shuts down the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
