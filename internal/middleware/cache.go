package middleware

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/urtica-dioica/tito-sub002/internal/cache"
	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/constants"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
)

// mutatingMethods are the methods that can make cached reads stale.
var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// ResponseCache serves GET responses for preset routes from the cache and
// invalidates the affected namespaces after successful mutations. Must run
// after Authenticate so the namespace can be scoped to the principal.
//
// Every response on a cached route carries X-Cache (HIT or MISS) and
// X-Cache-Key so operators can see cache behavior per request.
func (m *Stack) ResponseCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Cache.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if mutatingMethods[r.Method] {
			m.serveMutation(w, r, next)
			return
		}

		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		policy := m.matchCachePolicy(r.URL.Path)
		if policy == nil {
			next.ServeHTTP(w, r)
			return
		}

		p := principal.FromContext(r.Context())
		key := cache.Key(cache.Namespace(policy.Scope, p), r.Method, r.URL.Path, r.URL.Query())

		if cached, hit := m.responses.Get(r.Context(), key); hit {
			w.Header().Set(constants.HeaderCache, "HIT")
			w.Header().Set(constants.HeaderCacheKey, key)
			if cached.ContentType != "" {
				w.Header().Set(constants.HeaderContentType, cached.ContentType)
			}
			w.WriteHeader(cached.Status)
			_, _ = w.Write(cached.Body)
			return
		}

		w.Header().Set(constants.HeaderCache, "MISS")
		w.Header().Set(constants.HeaderCacheKey, key)

		capture := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(capture, r)

		ttl := policy.TTL()
		if ttl <= 0 {
			ttl = m.config.Cache.DefaultTTL
		}

		m.responses.Put(r.Context(), key, &cache.CachedResponse{
			Status:      capture.statusCode,
			ContentType: capture.Header().Get(constants.HeaderContentType),
			Body:        capture.body.Bytes(),
		}, ttl)
	})
}

// serveMutation runs the handler and, when it succeeds, sweeps the cache
// namespaces the mutation could have made stale.
func (m *Stack) serveMutation(w http.ResponseWriter, r *http.Request, next http.Handler) {
	wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	next.ServeHTTP(wrapped, r)

	if wrapped.statusCode >= 200 && wrapped.statusCode < 300 {
		cleared := m.invalidator.ForMutation(r.Context(), principal.FromContext(r.Context()))
		if cleared > 0 {
			m.logger.WithField("keys_cleared", cleared).Debug("Invalidated cache after mutation")
		}
	}
}

// matchCachePolicy finds the cache policy with the longest prefix matching
// the request path, or nil for uncached routes.
func (m *Stack) matchCachePolicy(path string) *config.CachePolicy {
	var best *config.CachePolicy
	for i := range m.presets.CacheRoutes {
		policy := &m.presets.CacheRoutes[i]
		if !strings.HasPrefix(path, policy.Prefix) {
			continue
		}
		if best == nil || len(policy.Prefix) > len(best.Prefix) {
			best = policy
		}
	}
	return best
}

// captureWriter tees the response body into a buffer while streaming it to
// the client, so the cache stores exactly what was served.
type captureWriter struct {
	http.ResponseWriter

	statusCode int
	body       bytes.Buffer
}

// WriteHeader captures the status code.
func (cw *captureWriter) WriteHeader(code int) {
	cw.statusCode = code
	cw.ResponseWriter.WriteHeader(code)
}

// Write buffers the payload and forwards it to the client.
func (cw *captureWriter) Write(p []byte) (int, error) {
	cw.body.Write(p)
	return cw.ResponseWriter.Write(p)
}
