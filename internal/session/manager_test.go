package session_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
	"github.com/urtica-dioica/tito-sub002/internal/session"
)

func newManager(t *testing.T) (*session.Manager, *miniredis.Miniredis) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.SessionConfig{TTL: 24 * time.Hour, WriteTimeout: 3 * time.Second}
	return session.NewManager(redis.NewClientFromRedis(rdb, logger), cfg, logger), mr
}

func testPrincipal(id, fingerprint string) *principal.Principal {
	return &principal.Principal{
		ID:                    id,
		Role:                  "employee",
		DepartmentID:          "dept-eng",
		IsActive:              true,
		CredentialFingerprint: fingerprint,
	}
}

func TestDeriveSessionIDIsDeterministic(t *testing.T) {
	first := session.DeriveSessionID("emp-1", "sig-abc")
	second := session.DeriveSessionID("emp-1", "sig-abc")
	assert.Equal(t, first, second)
	assert.Len(t, first, 32)

	// A different credential or a different employee yields a different session.
	assert.NotEqual(t, first, session.DeriveSessionID("emp-1", "sig-def"))
	assert.NotEqual(t, first, session.DeriveSessionID("emp-2", "sig-abc"))
}

func TestTouchCreatesAndRefreshesOneSession(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()
	p := testPrincipal("emp-1", "sig-abc")

	require.NoError(t, manager.Touch(ctx, p, "10.0.0.1", "tito-app/2.1"))
	require.NoError(t, manager.Touch(ctx, p, "10.0.0.1", "tito-app/2.1"))
	require.NoError(t, manager.Touch(ctx, p, "10.0.0.1", "tito-app/2.1"))

	// Repeated requests with the same credential refresh one record
	// instead of minting new sessions.
	records, err := manager.ListActive(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "emp-1", records[0].EmployeeID)
	assert.Equal(t, "10.0.0.1", records[0].ClientAddr)
	assert.Equal(t, "tito-app/2.1", records[0].UserAgent)
}

func TestTouchPreservesCreatedAt(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()
	p := testPrincipal("emp-1", "sig-abc")

	require.NoError(t, manager.Touch(ctx, p, "10.0.0.1", "ua"))

	first, err := manager.Get(ctx, "emp-1", session.DeriveSessionID("emp-1", "sig-abc"))
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, manager.Touch(ctx, p, "10.0.0.1", "ua"))

	refreshed, err := manager.Get(ctx, "emp-1", session.DeriveSessionID("emp-1", "sig-abc"))
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, refreshed.CreatedAt)
	assert.True(t, refreshed.LastActivity.After(first.LastActivity))
}

func TestSlidingTTL(t *testing.T) {
	manager, mr := newManager(t)
	ctx := context.Background()
	p := testPrincipal("emp-1", "sig-abc")

	require.NoError(t, manager.Touch(ctx, p, "10.0.0.1", "ua"))

	// Activity at hour 23 pushes the expiry a full day out.
	mr.FastForward(23 * time.Hour)
	require.NoError(t, manager.Touch(ctx, p, "10.0.0.1", "ua"))

	mr.FastForward(23 * time.Hour)
	records, err := manager.ListActive(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// A full day of silence lets the record die.
	mr.FastForward(2 * time.Hour)
	records, err = manager.ListActive(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTrackIsFireAndForget(t *testing.T) {
	manager, _ := newManager(t)
	p := testPrincipal("emp-1", "sig-abc")

	// Track with an already-cancelled request context: the write is
	// detached and must still land.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	manager.Track(ctx, p, "10.0.0.1", "ua")

	assert.Eventually(t, func() bool {
		records, err := manager.ListActive(context.Background(), "emp-1")
		return err == nil && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMultipleDevicesMultipleSessions(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, manager.Touch(ctx, testPrincipal("emp-1", "sig-laptop"), "10.0.0.1", "ua-laptop"))
	require.NoError(t, manager.Touch(ctx, testPrincipal("emp-1", "sig-phone"), "10.0.0.2", "ua-phone"))
	require.NoError(t, manager.Touch(ctx, testPrincipal("emp-2", "sig-other"), "10.0.0.3", "ua"))

	records, err := manager.ListActive(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestInvalidateOne(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, manager.Touch(ctx, testPrincipal("emp-1", "sig-laptop"), "10.0.0.1", "ua"))
	require.NoError(t, manager.Touch(ctx, testPrincipal("emp-1", "sig-phone"), "10.0.0.2", "ua"))

	sessionID := session.DeriveSessionID("emp-1", "sig-laptop")
	require.NoError(t, manager.InvalidateOne(ctx, "emp-1", sessionID))

	records, err := manager.ListActive(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, session.DeriveSessionID("emp-1", "sig-phone"), records[0].SessionID)

	// Invalidating an absent session is not an error.
	require.NoError(t, manager.InvalidateOne(ctx, "emp-1", sessionID))
}

func TestInvalidateAll(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, manager.Touch(ctx, testPrincipal("emp-1", "sig-laptop"), "10.0.0.1", "ua"))
	require.NoError(t, manager.Touch(ctx, testPrincipal("emp-1", "sig-phone"), "10.0.0.2", "ua"))
	require.NoError(t, manager.Touch(ctx, testPrincipal("emp-2", "sig-other"), "10.0.0.3", "ua"))

	cleared, err := manager.InvalidateAll(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	// Other employees' sessions are untouched.
	records, err := manager.ListActive(ctx, "emp-2")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
