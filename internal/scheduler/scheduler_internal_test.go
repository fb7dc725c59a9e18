package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
)

// A cron callback can race Stop: the timer fires, Stop wins the lock, and
// the callback then runs against a stopped scheduler. The guard inside
// runScheduled must turn that callback into a no-op so no execution is
// observable after Stop returns.
func TestScheduledRunAfterStopDoesNothing(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := redis.NewMemoryStore(logger)
	t.Cleanup(func() { _ = store.Close() })

	s := New(store, logger)

	var runs atomic.Int64
	require.NoError(t, s.Register(Job{
		Name: "file-retention-sweep",
		Rule: Daily(config.DaySlot{Hour: 2}),
		Run: func(context.Context, map[string]any) (*Result, error) {
			runs.Add(1)
			return &Result{}, nil
		},
	}))

	s.Start()
	s.Stop()

	// The cron runner is discarded, so nothing re-arms a firing.
	assert.Nil(t, s.cron)

	// A callback already in flight when Stop ran must neither execute the
	// action nor leave bookkeeping behind.
	s.runScheduled("file-retention-sweep")
	assert.Zero(t, runs.Load())

	_, err := store.Get(context.Background(), bookkeepingPrefix+"file-retention-sweep")
	assert.ErrorIs(t, err, redis.ErrNotFound)
}

func TestScheduledRunBeforeStartDoesNothing(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := redis.NewMemoryStore(logger)
	t.Cleanup(func() { _ = store.Close() })

	s := New(store, logger)

	var runs atomic.Int64
	require.NoError(t, s.Register(Job{
		Name: "audit-log-prune",
		Rule: Daily(config.DaySlot{Hour: 3}),
		Run: func(context.Context, map[string]any) (*Result, error) {
			runs.Add(1)
			return &Result{}, nil
		},
	}))

	s.runScheduled("audit-log-prune")
	assert.Zero(t, runs.Load())
}
