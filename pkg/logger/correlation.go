package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// correlationKey is an unexported context key type to avoid collisions.
type correlationKey struct{}

// SetCorrelationID stores a correlation ID in the context so that log
// entries for the same request can be tied together across components.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID extracts the correlation ID from the context.
// Returns an empty string if none was set.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID returns a log entry carrying the context's correlation
// ID as a field. If the context has no correlation ID the plain logger entry
// is returned.
func WithCorrelationID(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if id := CorrelationID(ctx); id != "" {
		return logger.WithField("correlation_id", id)
	}
	return logrus.NewEntry(logger)
}
