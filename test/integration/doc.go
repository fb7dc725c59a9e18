// Package integration contains integration tests for the TITO platform
// service.
//
// These tests use testcontainers to spin up a real Redis instance and
// exercise the store, rate limiter, session manager, response cache, and
// scheduler bookkeeping end to end in an environment that closely matches
// production.
package integration
