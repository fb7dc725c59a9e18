package scheduler_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/models"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
	"github.com/urtica-dioica/tito-sub002/internal/scheduler"
)

func newScheduler(t *testing.T) (*scheduler.Scheduler, redis.Store) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := redis.NewMemoryStore(logger)
	t.Cleanup(func() { _ = store.Close() })

	return scheduler.New(store, logger), store
}

func noopJob(name string) scheduler.Job {
	return scheduler.Job{
		Name: name,
		Rule: scheduler.Daily(config.DaySlot{Hour: 2}),
		Run: func(_ context.Context, _ map[string]any) (*scheduler.Result, error) {
			return &scheduler.Result{}, nil
		},
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s, _ := newScheduler(t)

	require.NoError(t, s.Register(noopJob("file-retention-sweep")))
	assert.Error(t, s.Register(noopJob("file-retention-sweep")))
}

func TestRegisterRejectedWhileRunning(t *testing.T) {
	s, _ := newScheduler(t)

	require.NoError(t, s.Register(noopJob("file-retention-sweep")))
	s.Start()
	defer s.Stop()

	assert.Error(t, s.Register(noopJob("audit-log-prune")))
}

func TestStatusTracksNextOccurrence(t *testing.T) {
	s, _ := newScheduler(t)

	require.NoError(t, s.Register(noopJob("file-retention-sweep")))

	// Before Start no occurrence is armed.
	status := s.Status()
	assert.False(t, status.Running)
	require.Len(t, status.Jobs, 1)
	assert.True(t, status.Jobs[0].NextRunAt.IsZero())

	s.Start()
	status = s.Status()
	assert.True(t, status.Running)
	assert.False(t, status.Jobs[0].NextRunAt.IsZero())
	assert.True(t, status.Jobs[0].NextRunAt.After(time.Now()))

	// Stop clears the armed occurrence again.
	s.Stop()
	status = s.Status()
	assert.False(t, status.Running)
	assert.True(t, status.Jobs[0].NextRunAt.IsZero())
}

func TestStartStopIdempotent(t *testing.T) {
	s, _ := newScheduler(t)
	require.NoError(t, s.Register(noopJob("file-retention-sweep")))

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}

func TestStartWhileRunningWarns(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	store := redis.NewMemoryStore(logger)
	t.Cleanup(func() { _ = store.Close() })

	s := scheduler.New(store, logger)
	require.NoError(t, s.Register(noopJob("file-retention-sweep")))

	s.Start()
	defer s.Stop()
	s.Start()

	assert.True(t, s.Running())

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "already running") {
			warned = true
		}
	}
	assert.True(t, warned, "second Start should log a warning")
}

func TestTriggerRunsOutOfBand(t *testing.T) {
	s, _ := newScheduler(t)

	var calls atomic.Int64
	var gotParams map[string]any
	job := scheduler.Job{
		Name: "file-retention-sweep",
		Rule: scheduler.Daily(config.DaySlot{Hour: 2}),
		Run: func(_ context.Context, params map[string]any) (*scheduler.Result, error) {
			calls.Add(1)
			gotParams = params
			return &scheduler.Result{Count: 7, Detail: "7 files removed"}, nil
		},
	}
	require.NoError(t, s.Register(job))
	s.Start()
	defer s.Stop()

	before := s.Status().Jobs[0].NextRunAt

	result, elapsed, err := s.Trigger(context.Background(), "file-retention-sweep", map[string]any{"retention_days": 30})
	require.NoError(t, err)
	assert.Equal(t, 7, result.Count)
	assert.Equal(t, int64(1), calls.Load())
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	assert.Equal(t, map[string]any{"retention_days": 30}, gotParams)

	// A manual run neither consumes nor moves the scheduled occurrence.
	assert.Equal(t, before, s.Status().Jobs[0].NextRunAt)
}

func TestTriggerWorksWhileStopped(t *testing.T) {
	s, _ := newScheduler(t)
	require.NoError(t, s.Register(noopJob("file-retention-sweep")))

	result, _, err := s.Trigger(context.Background(), "file-retention-sweep", nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestTriggerUnknownJob(t *testing.T) {
	s, _ := newScheduler(t)

	_, _, err := s.Trigger(context.Background(), "no-such-job", nil)
	assert.ErrorIs(t, err, models.ErrUnknownJob)
}

func TestTriggerSurfacesJobError(t *testing.T) {
	s, _ := newScheduler(t)

	wantErr := errors.New("database unavailable")
	job := scheduler.Job{
		Name: "audit-log-prune",
		Rule: scheduler.Weekly(time.Sunday, config.DaySlot{Hour: 2}),
		Run: func(_ context.Context, _ map[string]any) (*scheduler.Result, error) {
			return nil, wantErr
		},
	}
	require.NoError(t, s.Register(job))

	_, _, err := s.Trigger(context.Background(), "audit-log-prune", nil)
	assert.ErrorIs(t, err, wantErr)
}

func TestTriggerWritesBookkeeping(t *testing.T) {
	s, store := newScheduler(t)
	require.NoError(t, s.Register(noopJob("file-retention-sweep")))

	_, _, err := s.Trigger(context.Background(), "file-retention-sweep", nil)
	require.NoError(t, err)

	payload, err := store.Get(context.Background(), "tito:jobs:lastrun:file-retention-sweep")
	require.NoError(t, err)
	assert.Contains(t, payload, `"job":"file-retention-sweep"`)
	assert.Contains(t, payload, `"source":"manual"`)
}

func TestBookkeepingOutlivesRunContext(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := redis.NewClientFromRedis(rdb, logger)

	s := scheduler.New(store, logger)
	require.NoError(t, s.Register(scheduler.Job{
		Name: "file-retention-sweep",
		Rule: scheduler.Daily(config.DaySlot{Hour: 2}),
		Run: func(ctx context.Context, _ map[string]any) (*scheduler.Result, error) {
			return nil, ctx.Err()
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The run dies on its expired context; the record of that failure must
	// still land in the store.
	_, _, err := s.Trigger(ctx, "file-retention-sweep", nil)
	require.Error(t, err)

	payload, err := store.Get(context.Background(), "tito:jobs:lastrun:file-retention-sweep")
	require.NoError(t, err)
	assert.Contains(t, payload, `"error":"context canceled"`)
}
