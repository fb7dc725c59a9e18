// Package redis provides the shared key-value store client for the TITO
// platform service. Every cross-cutting component (rate limiter, session
// tracker, response cache, scheduler bookkeeping) depends on this package;
// nothing here knows about HR domain entities.
//
// The store keys are organized with prefixes to avoid collisions:
//   - tito:cache:{namespace}:{request} - cached response payloads with TTL
//   - tito:session:{employee}:{id}     - session records with sliding TTL
//   - tito:ratelimit:{scope}           - fixed-window counters with TTL
//   - tito:jobs:lastrun:{name}         - scheduler bookkeeping
//
// Every request-path operation fails soft: when the store is unreachable a
// Get behaves as a miss, an Increment behaves as the first hit of a window,
// and writes become logged no-ops. Infrastructure failures are warnings in
// the log, never errors surfaced to a request.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/models"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "tito:"

// ScanBatchSize is the number of keys to scan per SCAN iteration.
const ScanBatchSize = 100

// NoExpiry is the TTL reported for keys that exist without an expiry.
const NoExpiry = time.Duration(-1)

// ErrNotFound is returned when a key does not exist in the store.
// This is a sentinel error that callers can check to distinguish between
// an absent key (expected) and an empty stored value (also valid).
var ErrNotFound = errors.New("key not found")

// Store defines the interface for the shared key-value store operations.
// All methods are context-aware. Request-path methods degrade softly on
// store failure per the component degradation policy; administrative
// methods (Keys, Stats, Ping) report real errors so operators can see them.
//
// Thread Safety: implementations must be safe for concurrent use.
type Store interface {
	// Close gracefully closes the store connection pool.
	Close() error

	// Ping verifies connectivity to the store.
	// Returns an error if the server is unreachable or unresponsive.
	Ping(ctx context.Context) error

	// Healthy reports the connectivity observed by the most recent
	// operation without performing network I/O.
	Healthy() bool

	// Get retrieves the value stored under key.
	// Returns ErrNotFound when the key is absent or the store is
	// unreachable (degraded reads behave as misses).
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given TTL. A zero TTL stores
	// the value without expiry. Unreachable store degrades to a logged
	// no-op.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a single key. Idempotent; absent keys are not an
	// error. Unreachable store degrades to a logged no-op.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching the glob pattern using
	// batched SCAN+DEL, returning the number of keys removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Keys lists every key matching the glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Increment atomically increments the counter at key and returns the
	// new count. The window TTL is set only when the increment created the
	// key; it is never reset on subsequent increments, so the window
	// closes on schedule. Unreachable store degrades to count 1.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// TTL returns the remaining lifetime of key, NoExpiry for keys without
	// an expiry, and ErrNotFound for absent keys.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Stats aggregates key count and memory usage for the admin API.
	Stats(ctx context.Context) (*models.StoreStats, error)
}

// Client is a Redis-backed Store implementation wrapping go-redis with
// connection pooling, structured logging, and the soft-failure policy
// described in the package documentation.
type Client struct {
	rdb     *redis.Client
	logger  *logrus.Logger
	healthy atomic.Bool
}

// NewClient creates a new Redis client instance with the provided
// configuration. It establishes a connection pool, validates connectivity
// with an initial Ping, and returns a ready-to-use client. The caller is
// expected to fall back to NewMemoryStore when this returns an error.
func NewClient(cfg *config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password // pragma: allowlist secret
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConn
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolTimeout = cfg.PoolTimeout
	opts.ConnMaxIdleTime = cfg.IdleTimeout

	client := &Client{
		rdb:    redis.NewClient(opts),
		logger: logger,
	}

	if pingErr := client.Ping(context.Background()); pingErr != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
	}

	logger.Info("Connected to Redis successfully")

	return client, nil
}

// NewClientFromRedis wraps an existing go-redis client. Used by tests to
// point the store at a miniredis instance.
func NewClientFromRedis(rdb *redis.Client, logger *logrus.Logger) *Client {
	c := &Client{rdb: rdb, logger: logger}
	c.healthy.Store(true)
	return c
}

// Close gracefully shuts down the Redis client and closes all connections
// in the pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close Redis connection")
		return err
	}
	c.logger.Info("Redis connection closed")
	return nil
}

// Ping tests connectivity to the Redis server and records the outcome for
// Healthy().
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	c.healthy.Store(true)
	return nil
}

// Healthy reports the connectivity observed by the most recent operation.
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// Get retrieves the value stored under key. An unreachable store is
// reported as ErrNotFound so callers observe a miss, per the degradation
// policy.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		c.degraded("get", key, err)
		return "", ErrNotFound
	}
	c.healthy.Store(true)
	return value, nil
}

// Set stores value under key with the given TTL. A zero TTL stores the
// value without expiry. Store failures are logged and swallowed.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.degraded("set", key, err)
		return nil
	}
	c.healthy.Store(true)
	return nil
}

// Delete removes a single key. Idempotent; store failures are logged and
// swallowed.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.degraded("delete", key, err)
		return nil
	}
	c.healthy.Store(true)
	return nil
}

// DeletePattern removes every key matching the glob pattern using batched
// SCAN+DEL, which does not block the server the way KEYS would. Returns
// the number of keys removed; an unreachable store degrades to zero.
func (c *Client) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.scanKeys(ctx, pattern)
	if err != nil {
		c.degraded("delete_pattern", pattern, err)
		return 0, nil
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted := 0
	for i := 0; i < len(keys); i += ScanBatchSize {
		end := min(i+ScanBatchSize, len(keys))

		batch := keys[i:end]
		result, delErr := c.rdb.Del(ctx, batch...).Result()
		if delErr != nil {
			c.degraded("delete_pattern", pattern, delErr)
			return deleted, nil
		}
		deleted += int(result)
	}

	c.logger.WithFields(logrus.Fields{
		"pattern":      pattern,
		"keys_deleted": deleted,
	}).Debug("Pattern delete completed")
	return deleted, nil
}

// Keys lists every key matching the glob pattern. This is an
// administrative operation, so store errors are returned to the caller.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := c.scanKeys(ctx, pattern)
	if err != nil {
		c.healthy.Store(false)
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	c.healthy.Store(true)
	return keys, nil
}

// Increment atomically increments the counter at key. The window TTL is
// attached only while the key carries none, so the window keeps its
// original closing time no matter how many requests land in it. An
// unreachable store degrades to count 1, which makes every dependent
// limiter fail open.
func (c *Client) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		c.degraded("increment", key, err)
		return 1, nil
	}
	c.healthy.Store(true)

	if window > 0 {
		// NX keeps the creation-time TTL untouched on later increments,
		// and repairs a counter whose creation-time expiry was lost; an
		// immortal counter would hold its scope closed forever.
		if expErr := c.rdb.ExpireNX(ctx, key, window).Err(); expErr != nil {
			c.degraded("increment_expire", key, expErr)
		}
	}

	return count, nil
}

// TTL returns the remaining lifetime of key, NoExpiry for keys without an
// expiry, and ErrNotFound for absent keys.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		c.degraded("ttl", key, err)
		return 0, ErrNotFound
	}
	c.healthy.Store(true)

	// go-redis reports -2 for absent keys and -1 for keys without expiry.
	switch {
	case ttl == -2*time.Nanosecond:
		return 0, ErrNotFound
	case ttl < 0:
		return NoExpiry, nil
	default:
		return ttl, nil
	}
}

// Stats aggregates key count under the service prefix and the store's
// reported memory usage.
func (c *Client) Stats(ctx context.Context) (*models.StoreStats, error) {
	keys, err := c.scanKeys(ctx, KeyPrefix+"*")
	if err != nil {
		c.healthy.Store(false)
		return nil, fmt.Errorf("failed to scan keys for stats: %w", err)
	}
	c.healthy.Store(true)

	return &models.StoreStats{
		KeyCount:    len(keys),
		MemoryUsage: c.memoryUsage(ctx),
		Healthy:     true,
	}, nil
}

// scanKeys walks the keyspace with SCAN, collecting every key matching the
// glob pattern.
func (c *Client) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		batch, nextCursor, err := c.rdb.Scan(ctx, cursor, pattern, ScanBatchSize).Result()
		if err != nil {
			return nil, err
		}

		keys = append(keys, batch...)
		cursor = nextCursor

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// memoryUsage retrieves used_memory_human from the INFO memory section.
func (c *Client) memoryUsage(ctx context.Context) string {
	info, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		c.logger.WithError(err).Warn("Failed to get Redis memory info")
		return "unavailable"
	}

	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if value, ok := strings.CutPrefix(line, "used_memory_human:"); ok {
			return value
		}
	}
	return "unavailable"
}

// degraded records a soft failure: the operation's caller proceeds as if
// the key were absent, and the failure shows up in the log and Healthy().
func (c *Client) degraded(op, key string, err error) {
	c.healthy.Store(false)
	c.logger.WithError(err).WithFields(logrus.Fields{
		"operation": op,
		"key":       key,
	}).Warn("Store operation degraded, continuing without it")
}
