package redis

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/models"
)

// CleanupInterval is the interval between expired item cleanup runs.
const CleanupInterval = 5 * time.Minute

// MemoryStore is an in-memory implementation of the Store interface used
// when Redis is unavailable or disabled for local development. Data lives
// in a single map with TTL support via lazy expiry checks plus a background
// cleanup goroutine. It is process-local: sessions, counters, and cached
// responses do not survive a restart and are not shared between instances.
type MemoryStore struct {
	items         map[string]*expiringItem
	logger        *logrus.Logger
	mu            sync.RWMutex
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// expiringItem wraps a stored value with its expiration time. A zero
// ExpiresAt means no expiry.
type expiringItem struct {
	Value     string
	ExpiresAt time.Time
}

// isExpired checks if the item has expired.
func (e *expiringItem) isExpired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// NewMemoryStore creates a new in-memory store with TTL cleanup.
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	store := &MemoryStore{
		items:         make(map[string]*expiringItem),
		logger:        logger,
		cleanupTicker: time.NewTicker(CleanupInterval),
		stopCleanup:   make(chan struct{}),
	}

	go store.cleanupExpiredItems()

	logger.Info("In-memory store initialized with TTL cleanup")
	return store
}

// cleanupExpiredItems runs periodically to remove expired items.
func (m *MemoryStore) cleanupExpiredItems() {
	defer m.cleanupTicker.Stop()

	for {
		select {
		case <-m.cleanupTicker.C:
			m.performCleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// performCleanup removes expired items from the map.
func (m *MemoryStore) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	expired := 0
	for key, item := range m.items {
		if !item.ExpiresAt.IsZero() && now.After(item.ExpiresAt) {
			delete(m.items, key)
			expired++
		}
	}

	if expired > 0 {
		m.logger.WithField("expired_items", expired).Debug("Cleaned up expired items from memory store")
	}
}

// Close shuts down the memory store and cleanup goroutine.
func (m *MemoryStore) Close() error {
	close(m.stopCleanup)
	m.logger.Info("Memory store closed")
	return nil
}

// Ping always returns nil for memory store (always available).
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Healthy always returns true for memory store.
func (m *MemoryStore) Healthy() bool {
	return true
}

// Get retrieves the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists || item.isExpired() {
		return "", ErrNotFound
	}

	return item.Value, nil
}

// Set stores value under key with the given TTL. A zero TTL stores the
// value without expiry.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &expiringItem{Value: value}
	if ttl > 0 {
		item.ExpiresAt = time.Now().Add(ttl)
	}
	m.items[key] = item

	return nil
}

// Delete removes a single key. Idempotent.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// DeletePattern removes every key matching the glob pattern and returns
// the number of keys removed.
func (m *MemoryStore) DeletePattern(_ context.Context, pattern string) (int, error) {
	matcher, err := compileGlob(pattern)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, item := range m.items {
		if matcher.MatchString(key) {
			delete(m.items, key)
			if !item.isExpired() {
				deleted++
			}
		}
	}

	return deleted, nil
}

// Keys lists every key matching the glob pattern.
func (m *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	matcher, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key, item := range m.items {
		if !item.isExpired() && matcher.MatchString(key) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Increment atomically increments the counter at key. The window TTL is
// set only when the increment created the counter, matching Redis INCR
// plus a first-write EXPIRE.
func (m *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[key]
	if !exists || item.isExpired() {
		item = &expiringItem{Value: "1"}
		if window > 0 {
			item.ExpiresAt = time.Now().Add(window)
		}
		m.items[key] = item
		return 1, nil
	}

	count, err := strconv.ParseInt(item.Value, 10, 64)
	if err != nil {
		count = 0
	}
	count++
	item.Value = strconv.FormatInt(count, 10)

	return count, nil
}

// TTL returns the remaining lifetime of key, NoExpiry for keys without an
// expiry, and ErrNotFound for absent keys.
func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists || item.isExpired() {
		return 0, ErrNotFound
	}

	if item.ExpiresAt.IsZero() {
		return NoExpiry, nil
	}

	return time.Until(item.ExpiresAt), nil
}

// Stats aggregates key count for the admin API. Memory usage is not
// tracked for the in-memory store.
func (m *MemoryStore) Stats(_ context.Context) (*models.StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for key, item := range m.items {
		if !item.isExpired() && strings.HasPrefix(key, KeyPrefix) {
			count++
		}
	}

	return &models.StoreStats{
		KeyCount:    count,
		MemoryUsage: "unavailable",
		Healthy:     true,
	}, nil
}

// compileGlob translates a Redis-style glob pattern (* and ? wildcards)
// into an anchored regular expression. Unlike path.Match, * must cross
// every character including slashes, since cache keys embed request paths.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
