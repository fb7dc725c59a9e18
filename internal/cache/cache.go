// Package cache implements the response cache for read-heavy GET routes.
// Cached entries are full response envelopes (status, content type, body)
// stored under namespaced keys, so invalidation can sweep exactly one
// visibility scope: the systemwide namespace, one employee's namespace, or
// one department's namespace. Invalidation is pattern-based and
// deliberately over-broad: a mutation clears every cached route in the
// affected namespaces rather than tracking which routes a mutation could
// have changed. Stale data in an HR system is a correctness bug; an extra
// cache miss is not.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
)

// KeyPrefix namespaces every cached response in the store.
const KeyPrefix = redis.KeyPrefix + "cache:"

// GlobalNamespace is the namespace for responses visible to everyone.
const GlobalNamespace = "global"

// CachedResponse is the stored envelope for one cached response.
type CachedResponse struct {
	// Status is the upstream HTTP status. Only 200 responses are cached,
	// but the envelope keeps the status so replay is explicit.
	Status int `json:"status"`
	// ContentType is the upstream Content-Type header.
	ContentType string `json:"content_type"`
	// Body is the response payload. JSON encoding stores it base64.
	Body []byte `json:"body"`
}

// Namespace selects the cache namespace for a scope and principal.
// Principal-scoped routes cache under the employee ID, department-scoped
// routes under the department, everything else under the shared global
// namespace. A department-scoped route falls back to the principal
// namespace when the employee has no department, so employees never read
// each other's entries through the fallback.
func Namespace(scope config.CacheScope, p *principal.Principal) string {
	switch scope {
	case config.ScopePrincipal:
		if p != nil {
			return p.ID
		}
	case config.ScopeDepartment:
		if p != nil && p.DepartmentID != "" {
			return "dept:" + p.DepartmentID
		}
		if p != nil {
			return p.ID
		}
	case config.ScopeNone:
	}
	return GlobalNamespace
}

// Key builds the store key for one request. Query parameters are
// canonicalized (sorted by name) so parameter order does not fragment the
// cache.
func Key(namespace, method, path string, query url.Values) string {
	key := fmt.Sprintf("%s%s:%s:%s", KeyPrefix, namespace, method, path)
	if encoded := query.Encode(); encoded != "" {
		key += "?" + encoded
	}
	return key
}

// ResponseCache stores and retrieves response envelopes.
type ResponseCache struct {
	store   redis.Store
	maxBody int
	logger  *logrus.Logger
}

// New creates a response cache backed by the given store.
func New(store redis.Store, cfg *config.CacheConfig, logger *logrus.Logger) *ResponseCache {
	return &ResponseCache{
		store:   store,
		maxBody: cfg.MaxBodyBytes,
		logger:  logger,
	}
}

// Get returns the cached envelope for key, or false on a miss. Store
// failures and undecodable entries are both misses; a broken entry is
// deleted so it cannot keep failing.
func (c *ResponseCache) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	payload, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			c.logger.WithError(err).WithField("key", key).Warn("Cache read failed, treating as miss")
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal([]byte(payload), &cached); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Dropping undecodable cache entry")
		_ = c.store.Delete(ctx, key)
		return nil, false
	}

	return &cached, true
}

// Put stores a response envelope under key. Only 200 responses within the
// body size ceiling are stored; everything else is silently skipped, as is
// any store failure.
func (c *ResponseCache) Put(ctx context.Context, key string, response *CachedResponse, ttl time.Duration) {
	if response.Status != http.StatusOK {
		return
	}
	if c.maxBody > 0 && len(response.Body) > c.maxBody {
		c.logger.WithFields(logrus.Fields{
			"key":        key,
			"body_bytes": len(response.Body),
		}).Debug("Response too large to cache")
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to marshal cache entry")
		return
	}

	_ = c.store.Set(ctx, key, string(payload), ttl)
}

// Invalidator sweeps cache namespaces after mutations.
type Invalidator struct {
	store  redis.Store
	logger *logrus.Logger
}

// NewInvalidator creates an invalidator backed by the given store.
func NewInvalidator(store redis.Store, logger *logrus.Logger) *Invalidator {
	return &Invalidator{store: store, logger: logger}
}

// Global clears the systemwide namespace.
func (i *Invalidator) Global(ctx context.Context) (int, error) {
	return i.sweep(ctx, GlobalNamespace)
}

// Principal clears one employee's namespace.
func (i *Invalidator) Principal(ctx context.Context, employeeID string) (int, error) {
	return i.sweep(ctx, employeeID)
}

// Department clears one department's namespace.
func (i *Invalidator) Department(ctx context.Context, departmentID string) (int, error) {
	return i.sweep(ctx, "dept:"+departmentID)
}

// All clears every cached response in every namespace. Sessions, rate
// limit counters, and scheduler bookkeeping share the store but live
// under different prefixes and are untouched.
func (i *Invalidator) All(ctx context.Context) (int, error) {
	cleared, err := i.store.DeletePattern(ctx, KeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to clear response cache: %w", err)
	}
	i.logger.WithField("keys_cleared", cleared).Info("Cleared entire response cache")
	return cleared, nil
}

// ForMutation clears the namespaces a mutating request could have made
// stale: the principal's own namespace, their department's, and the
// systemwide namespace. Over-broad on purpose.
func (i *Invalidator) ForMutation(ctx context.Context, p *principal.Principal) int {
	cleared := 0

	if n, err := i.Global(ctx); err == nil {
		cleared += n
	}
	if p != nil {
		if n, err := i.Principal(ctx, p.ID); err == nil {
			cleared += n
		}
		if p.DepartmentID != "" {
			if n, err := i.Department(ctx, p.DepartmentID); err == nil {
				cleared += n
			}
		}
	}

	return cleared
}

func (i *Invalidator) sweep(ctx context.Context, namespace string) (int, error) {
	cleared, err := i.store.DeletePattern(ctx, KeyPrefix+namespace+":*")
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache namespace %s: %w", namespace, err)
	}

	if cleared > 0 {
		i.logger.WithFields(logrus.Fields{
			"namespace":    namespace,
			"keys_cleared": cleared,
		}).Debug("Invalidated cache namespace")
	}
	return cleared, nil
}
