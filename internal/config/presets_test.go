package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urtica-dioica/tito-sub002/internal/config"
)

func TestDefaultPresets(t *testing.T) {
	presets := config.DefaultPresets()

	require.NoError(t, presets.Validate())
	assert.NotEmpty(t, presets.CacheRoutes)
	assert.NotEmpty(t, presets.ActionLimits)

	// The clock action ships tighter than the general client limit.
	var clock *config.ActionLimit
	for i := range presets.ActionLimits {
		if presets.ActionLimits[i].Name == "clock" {
			clock = &presets.ActionLimits[i]
		}
	}
	require.NotNil(t, clock)
	assert.Equal(t, "/api/v1/attendance/clock", clock.Prefix)
	assert.Equal(t, time.Minute, clock.Window())
}

func TestPresetsValidate(t *testing.T) {
	tests := []struct {
		name    string
		presets config.Presets
		wantErr string
	}{
		{
			name: "empty_cache_prefix",
			presets: config.Presets{
				CacheRoutes: []config.CachePolicy{{Prefix: "", TTLSeconds: 60, Scope: config.ScopeNone}},
			},
			wantErr: "prefix must not be empty",
		},
		{
			name: "unknown_scope",
			presets: config.Presets{
				CacheRoutes: []config.CachePolicy{{Prefix: "/api/v1/x", TTLSeconds: 60, Scope: "tenant"}},
			},
			wantErr: "unknown scope",
		},
		{
			name: "negative_ttl",
			presets: config.Presets{
				CacheRoutes: []config.CachePolicy{{Prefix: "/api/v1/x", TTLSeconds: -1, Scope: config.ScopeNone}},
			},
			wantErr: "negative TTL",
		},
		{
			name: "action_without_name",
			presets: config.Presets{
				ActionLimits: []config.ActionLimit{{Prefix: "/api/v1/x", MaxRequests: 5, WindowSeconds: 60}},
			},
			wantErr: "prefix and a name",
		},
		{
			name: "action_zero_window",
			presets: config.Presets{
				ActionLimits: []config.ActionLimit{{Prefix: "/api/v1/x", Name: "x", MaxRequests: 5}},
			},
			wantErr: "positive ceiling and window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.presets.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCachePolicyTTL(t *testing.T) {
	assert.Equal(t, 5*time.Minute, config.CachePolicy{TTLSeconds: 300}.TTL())
	assert.Zero(t, config.CachePolicy{}.TTL())
}

func TestLoadPresetsMissingFilesFallsBack(t *testing.T) {
	// No configs directory is reachable from this package's test working
	// directory's parent chain in a fresh checkout without the sample file;
	// point the loader at defaults by running from a temp dir.
	t.Chdir(t.TempDir())

	presets, err := config.LoadPresets(config.Local)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPresets(), presets)
}
