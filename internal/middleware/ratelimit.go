package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/constants"
	"github.com/urtica-dioica/tito-sub002/internal/models"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
	"github.com/urtica-dioica/tito-sub002/internal/ratelimit"
)

// RateLimit enforces the fixed-window rate limits for a request: the
// per-client scope always, the per-principal and per-department scopes
// when a principal is attached, and a named per-action scope when the
// route has one. All matching windows observe the request; the first
// violated scope decides the rejection. Must run after Authenticate so
// the principal scopes are visible.
//
// The X-Ratelimit-* headers always describe the tightest applicable
// scope, and a rejection carries Retry-After with the seconds until that
// scope's window closes.
func (m *Stack) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientAddr := ClientAddr(r)

		if m.isTrustedProxy(clientAddr) {
			next.ServeHTTP(w, r)
			return
		}

		probes := m.probesFor(r, clientAddr)
		result := m.limiter.CheckAll(r.Context(), probes)

		w.Header().Set(constants.HeaderRateLimitLimit, strconv.Itoa(result.Limit))
		w.Header().Set(constants.HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
		if !result.Reset.IsZero() {
			w.Header().Set(constants.HeaderRateLimitReset, strconv.FormatInt(result.Reset.Unix(), 10))
		}

		if !result.Allowed {
			m.logger.WithFields(logrus.Fields{
				"client_addr": clientAddr,
				"path":        r.URL.Path,
				"method":      r.Method,
			}).Warn("Request rejected by rate limit")

			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))
			m.writeError(w, &models.APIError{
				Code:        "rate_limited",
				Description: "Too many requests, slow down and retry later",
				StatusCode:  http.StatusTooManyRequests,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// probesFor assembles the rate limit scopes applicable to one request.
// The client, principal, and department windows are all scoped to the
// request path; action windows are bound to their configured prefix
// instead, so every request under the prefix lands in the same window.
func (m *Stack) probesFor(r *http.Request, clientAddr string) []ratelimit.Probe {
	sec := &m.config.Security
	route := r.URL.Path

	probes := []ratelimit.Probe{{
		Key:    ratelimit.ClientKey(clientAddr, route),
		Limit:  sec.RateLimitMax,
		Window: sec.RateLimitWindow,
	}}

	subject := clientAddr
	if p := principal.FromContext(r.Context()); p != nil {
		subject = p.ID
		probes = append(probes, ratelimit.Probe{
			Key:    ratelimit.PrincipalKey(p.ID, route),
			Limit:  sec.PrincipalLimitMax,
			Window: sec.PrincipalLimitWindow,
		})
		if p.DepartmentID != "" && sec.DepartmentLimitMax > 0 {
			probes = append(probes, ratelimit.Probe{
				Key:    ratelimit.DepartmentKey(p.DepartmentID, route),
				Limit:  sec.DepartmentLimitMax,
				Window: sec.DepartmentLimitWindow,
			})
		}
	}

	if action := m.matchActionLimit(r.URL.Path); action != nil {
		probes = append(probes, ratelimit.Probe{
			Key:    ratelimit.ActionKey(action.Name, subject),
			Limit:  action.MaxRequests,
			Window: action.Window(),
		})
	}

	return probes
}

// matchActionLimit finds the action limit with the longest prefix matching
// the request path, or nil.
func (m *Stack) matchActionLimit(path string) *config.ActionLimit {
	var best *config.ActionLimit
	for i := range m.presets.ActionLimits {
		action := &m.presets.ActionLimits[i]
		if !strings.HasPrefix(path, action.Prefix) {
			continue
		}
		if best == nil || len(action.Prefix) > len(best.Prefix) {
			best = action
		}
	}
	return best
}
