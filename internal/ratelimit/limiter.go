// Package ratelimit implements fixed-window rate limiting on top of the
// shared key-value store. A window is a counter key with a TTL: the first
// request of a window creates the counter and starts the clock, every
// further request increments it, and the window closes when the TTL
// expires. The limiter fails open: when the store is unreachable every
// check is allowed, because rejecting legitimate traffic during an
// infrastructure outage is the worse failure mode for an HR system.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/redis"
)

// keyPrefix namespaces every rate limit counter in the store.
const keyPrefix = redis.KeyPrefix + "ratelimit:"

// Probe is one scope to check: a counter key with its ceiling and window.
type Probe struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Result is the outcome of a rate limit check, carrying everything the
// middleware needs for the X-Ratelimit-* response headers.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Limit is the ceiling of the scope that produced this result.
	Limit int
	// Remaining is the number of requests left in the current window,
	// floored at zero.
	Remaining int
	// RetryAfter is the time until the violated window closes. Zero when
	// the request was allowed.
	RetryAfter time.Duration
	// Reset is the wall-clock time the current window closes.
	Reset time.Time
}

// Limiter checks fixed-window rate limits against the shared store.
type Limiter struct {
	store  redis.Store
	logger *logrus.Logger
}

// New creates a rate limiter backed by the given store.
func New(store redis.Store, logger *logrus.Logger) *Limiter {
	return &Limiter{store: store, logger: logger}
}

// ClientKey builds the counter key for the per-client scope on one route.
// Windows are per route, so a chatty route never consumes another route's
// budget for the same client.
func ClientKey(clientAddr, route string) string {
	return keyPrefix + "client:" + clientAddr + ":" + route
}

// PrincipalKey builds the counter key for the per-principal scope on one
// route.
func PrincipalKey(principalID, route string) string {
	return keyPrefix + "principal:" + principalID + ":" + route
}

// DepartmentKey builds the counter key for the per-department scope on one
// route. The department window aggregates every principal assigned to it.
func DepartmentKey(departmentID, route string) string {
	return keyPrefix + "department:" + departmentID + ":" + route
}

// ActionKey builds the counter key for a named action scope, counted per
// principal (or per client address for unauthenticated actions).
func ActionKey(action, subject string) string {
	return fmt.Sprintf("%saction:%s:%s", keyPrefix, action, subject)
}

// Check increments the window counter for one probe and decides the
// request. The counter is incremented before the decision, so rejected
// requests still count against the window; a client that keeps retrying
// while rejected never sees the window reopen early.
func (l *Limiter) Check(ctx context.Context, probe Probe) Result {
	count, err := l.store.Increment(ctx, probe.Key, probe.Window)
	if err != nil {
		// Fail open: an unreachable store must not reject traffic.
		l.logger.WithError(err).WithField("key", probe.Key).Warn("Rate limit check degraded, allowing request")
		return Result{Allowed: true, Limit: probe.Limit, Remaining: probe.Limit - 1}
	}

	remaining := probe.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:   count <= int64(probe.Limit),
		Limit:     probe.Limit,
		Remaining: remaining,
		Reset:     time.Now().Add(l.windowRemaining(ctx, probe)),
	}

	if !result.Allowed {
		result.RetryAfter = l.windowRemaining(ctx, probe)
		l.logger.WithFields(logrus.Fields{
			"key":         probe.Key,
			"count":       count,
			"limit":       probe.Limit,
			"retry_after": result.RetryAfter.Seconds(),
		}).Warn("Rate limit exceeded")
	}

	return result
}

// CheckAll evaluates every probe in order and returns the first violation,
// or the result of the tightest allowed scope (fewest remaining requests)
// when all pass. Every probe is incremented even when an earlier one
// already failed, so all windows observe the request.
func (l *Limiter) CheckAll(ctx context.Context, probes []Probe) Result {
	if len(probes) == 0 {
		return Result{Allowed: true}
	}

	var violation *Result
	tightest := Result{Allowed: true, Remaining: -1}

	for _, probe := range probes {
		result := l.Check(ctx, probe)
		if !result.Allowed {
			if violation == nil {
				violation = &result
			}
			continue
		}
		if tightest.Remaining < 0 || result.Remaining < tightest.Remaining {
			tightest = result
		}
	}

	if violation != nil {
		return *violation
	}
	return tightest
}

// windowRemaining reads the counter's TTL to learn when the current window
// closes, capped at the configured window length. A missing or unreadable
// TTL falls back to the full window, which over-estimates rather than
// inviting an early retry.
func (l *Limiter) windowRemaining(ctx context.Context, probe Probe) time.Duration {
	ttl, err := l.store.TTL(ctx, probe.Key)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			l.logger.WithError(err).WithField("key", probe.Key).Debug("Failed to read window TTL")
		}
		return probe.Window
	}
	if ttl <= 0 || ttl > probe.Window {
		return probe.Window
	}
	return ttl
}
