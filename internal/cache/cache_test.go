package cache_test

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urtica-dioica/tito-sub002/internal/cache"
	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
)

func newCache(t *testing.T) (*cache.ResponseCache, *cache.Invalidator, *miniredis.Miniredis) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := redis.NewClientFromRedis(rdb, logger)
	cfg := &config.CacheConfig{Enabled: true, DefaultTTL: 5 * time.Minute, MaxBodyBytes: 1024}

	return cache.New(store, cfg, logger), cache.NewInvalidator(store, logger), mr
}

func TestNamespace(t *testing.T) {
	emp := &principal.Principal{ID: "emp-1", DepartmentID: "dept-eng"}
	noDept := &principal.Principal{ID: "emp-2"}

	tests := []struct {
		name  string
		scope config.CacheScope
		p     *principal.Principal
		want  string
	}{
		{name: "none_scope", scope: config.ScopeNone, p: emp, want: "global"},
		{name: "none_scope_anonymous", scope: config.ScopeNone, p: nil, want: "global"},
		{name: "principal_scope", scope: config.ScopePrincipal, p: emp, want: "emp-1"},
		{name: "principal_scope_anonymous", scope: config.ScopePrincipal, p: nil, want: "global"},
		{name: "department_scope", scope: config.ScopeDepartment, p: emp, want: "dept:dept-eng"},
		{name: "department_scope_no_department", scope: config.ScopeDepartment, p: noDept, want: "emp-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cache.Namespace(tt.scope, tt.p))
		})
	}
}

func TestKeyCanonicalizesQuery(t *testing.T) {
	a := cache.Key("global", http.MethodGet, "/api/v1/employees", url.Values{"page": {"2"}, "dept": {"eng"}})
	b := cache.Key("global", http.MethodGet, "/api/v1/employees", url.Values{"dept": {"eng"}, "page": {"2"}})
	assert.Equal(t, a, b)

	bare := cache.Key("global", http.MethodGet, "/api/v1/employees", nil)
	assert.NotEqual(t, a, bare)
	assert.NotContains(t, bare, "?")
}

func TestCachePutGetRoundTrip(t *testing.T) {
	rc, _, _ := newCache(t)
	ctx := context.Background()

	key := cache.Key("global", http.MethodGet, "/api/v1/departments", nil)
	rc.Put(ctx, key, &cache.CachedResponse{
		Status:      http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"departments":[]}`),
	}, time.Minute)

	cached, hit := rc.Get(ctx, key)
	require.True(t, hit)
	assert.Equal(t, http.StatusOK, cached.Status)
	assert.Equal(t, "application/json", cached.ContentType)
	assert.JSONEq(t, `{"departments":[]}`, string(cached.Body))
}

func TestCacheOnlyStoresOKResponses(t *testing.T) {
	rc, _, _ := newCache(t)
	ctx := context.Background()

	for _, status := range []int{http.StatusCreated, http.StatusNotFound, http.StatusInternalServerError} {
		key := cache.Key("global", http.MethodGet, "/api/v1/failing", nil)
		rc.Put(ctx, key, &cache.CachedResponse{Status: status, Body: []byte("x")}, time.Minute)

		_, hit := rc.Get(ctx, key)
		assert.False(t, hit, "status %d must not be cached", status)
	}
}

func TestCacheSkipsOversizedBodies(t *testing.T) {
	rc, _, _ := newCache(t)
	ctx := context.Background()

	key := cache.Key("global", http.MethodGet, "/api/v1/huge", nil)
	rc.Put(ctx, key, &cache.CachedResponse{
		Status: http.StatusOK,
		Body:   make([]byte, 2048),
	}, time.Minute)

	_, hit := rc.Get(ctx, key)
	assert.False(t, hit)
}

func TestCacheEntryExpires(t *testing.T) {
	rc, _, mr := newCache(t)
	ctx := context.Background()

	key := cache.Key("global", http.MethodGet, "/api/v1/departments", nil)
	rc.Put(ctx, key, &cache.CachedResponse{Status: http.StatusOK, Body: []byte("x")}, time.Minute)

	mr.FastForward(61 * time.Second)

	_, hit := rc.Get(ctx, key)
	assert.False(t, hit)
}

func TestCacheDropsUndecodableEntries(t *testing.T) {
	rc, _, mr := newCache(t)
	ctx := context.Background()

	key := cache.Key("global", http.MethodGet, "/api/v1/departments", nil)
	mr.Set(key, "not json at all")

	_, hit := rc.Get(ctx, key)
	assert.False(t, hit)
	assert.False(t, mr.Exists(key))
}

func TestInvalidatorScopes(t *testing.T) {
	rc, inv, _ := newCache(t)
	ctx := context.Background()

	ok := &cache.CachedResponse{Status: http.StatusOK, Body: []byte("x")}
	rc.Put(ctx, cache.Key("global", http.MethodGet, "/api/v1/departments", nil), ok, time.Minute)
	rc.Put(ctx, cache.Key("emp-1", http.MethodGet, "/api/v1/payroll", nil), ok, time.Minute)
	rc.Put(ctx, cache.Key("emp-2", http.MethodGet, "/api/v1/payroll", nil), ok, time.Minute)
	rc.Put(ctx, cache.Key("dept:dept-eng", http.MethodGet, "/api/v1/employees", nil), ok, time.Minute)

	cleared, err := inv.Principal(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	// The other principal's namespace is untouched.
	_, hit := rc.Get(ctx, cache.Key("emp-2", http.MethodGet, "/api/v1/payroll", nil))
	assert.True(t, hit)

	cleared, err = inv.Department(ctx, "dept-eng")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	cleared, err = inv.Global(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
}

func TestInvalidatorAllLeavesOtherPrefixesAlone(t *testing.T) {
	rc, inv, mr := newCache(t)
	ctx := context.Background()

	ok := &cache.CachedResponse{Status: http.StatusOK, Body: []byte("x")}
	rc.Put(ctx, cache.Key("global", http.MethodGet, "/api/v1/departments", nil), ok, time.Minute)
	rc.Put(ctx, cache.Key("emp-1", http.MethodGet, "/api/v1/payroll", nil), ok, time.Minute)
	mr.Set("tito:session:emp-1:abc", "session record")

	cleared, err := inv.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)
	assert.True(t, mr.Exists("tito:session:emp-1:abc"))
}

func TestForMutationSweepsAffectedNamespaces(t *testing.T) {
	rc, inv, _ := newCache(t)
	ctx := context.Background()

	ok := &cache.CachedResponse{Status: http.StatusOK, Body: []byte("x")}
	rc.Put(ctx, cache.Key("global", http.MethodGet, "/api/v1/departments", nil), ok, time.Minute)
	rc.Put(ctx, cache.Key("emp-1", http.MethodGet, "/api/v1/payroll", nil), ok, time.Minute)
	rc.Put(ctx, cache.Key("dept:dept-eng", http.MethodGet, "/api/v1/employees", nil), ok, time.Minute)
	rc.Put(ctx, cache.Key("emp-2", http.MethodGet, "/api/v1/payroll", nil), ok, time.Minute)

	p := &principal.Principal{ID: "emp-1", DepartmentID: "dept-eng"}
	cleared := inv.ForMutation(ctx, p)
	assert.Equal(t, 3, cleared)

	// Unrelated principals keep their entries.
	_, hit := rc.Get(ctx, cache.Key("emp-2", http.MethodGet, "/api/v1/payroll", nil))
	assert.True(t, hit)
}
