package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// CacheScope selects the namespace a cached route is stored under.
type CacheScope string

const (
	// ScopeNone caches the route in the systemwide namespace.
	ScopeNone CacheScope = "none"
	// ScopePrincipal caches the route per authenticated employee.
	ScopePrincipal CacheScope = "principal"
	// ScopeDepartment caches the route per department.
	ScopeDepartment CacheScope = "department"
)

// CachePolicy binds a route prefix to a cache TTL and namespace scope.
// The longest matching prefix wins.
type CachePolicy struct {
	// Prefix is the request path prefix the policy applies to.
	Prefix string `mapstructure:"prefix"`
	// TTLSeconds is the cache entry lifetime for the route.
	TTLSeconds int `mapstructure:"ttl_seconds"`
	// Scope selects the cache namespace (none, principal, department).
	Scope CacheScope `mapstructure:"scope"`
}

// TTL returns the policy TTL as a duration.
func (p CachePolicy) TTL() time.Duration {
	return time.Duration(p.TTLSeconds) * time.Second
}

// ActionLimit binds a route prefix to a named per-action rate limit,
// checked in addition to the client and principal scopes.
type ActionLimit struct {
	// Prefix is the request path prefix the limit applies to.
	Prefix string `mapstructure:"prefix"`
	// Name is the logical action name used in the counter key.
	Name string `mapstructure:"name"`
	// MaxRequests is the request ceiling per window.
	MaxRequests int `mapstructure:"max_requests"`
	// WindowSeconds is the fixed window length.
	WindowSeconds int `mapstructure:"window_seconds"`
}

// Window returns the limit window as a duration.
func (a ActionLimit) Window() time.Duration {
	return time.Duration(a.WindowSeconds) * time.Second
}

// Presets holds the per-route operational configuration loaded from YAML:
// response cache policies and named action rate limits.
type Presets struct {
	CacheRoutes  []CachePolicy `mapstructure:"cache_routes"`
	ActionLimits []ActionLimit `mapstructure:"action_limits"`
}

// DefaultPresets returns the built-in route presets used when no YAML
// configuration is present. They cover the read-heavy HR directory routes
// and the clock-in/out action.
func DefaultPresets() *Presets {
	return &Presets{
		CacheRoutes: []CachePolicy{
			{Prefix: "/api/v1/departments", TTLSeconds: 300, Scope: ScopeNone},
			{Prefix: "/api/v1/employees", TTLSeconds: 120, Scope: ScopeDepartment},
			{Prefix: "/api/v1/payroll", TTLSeconds: 60, Scope: ScopePrincipal},
			{Prefix: "/api/v1/leave", TTLSeconds: 60, Scope: ScopePrincipal},
			{Prefix: "/api/v1/settings", TTLSeconds: 600, Scope: ScopeNone},
		},
		ActionLimits: []ActionLimit{
			{Prefix: "/api/v1/attendance/clock", Name: "clock", MaxRequests: 10, WindowSeconds: 60},
			{Prefix: "/api/v1/auth/login", Name: "login", MaxRequests: 5, WindowSeconds: 300},
		},
	}
}

// LoadPresets loads route presets from configs/presets.yaml, overlaying
// environment-specific overrides (presets.local.yaml, presets.nonprod.yaml,
// presets.prod.yaml) when present. Missing files fall back to the built-in
// defaults rather than failing startup.
func LoadPresets(env Environment) (*Presets, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("presets")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return DefaultPresets(), nil
		}
		return nil, fmt.Errorf("failed to read presets config: %w", err)
	}

	var envConfigFile string
	switch env {
	case Local:
		envConfigFile = "presets.local"
	case NonProd:
		envConfigFile = "presets.nonprod"
	case Prod:
		envConfigFile = "presets.prod"
	default:
		envConfigFile = "presets.local"
	}

	envViper := viper.New()
	envViper.SetConfigType("yaml")
	envViper.SetConfigName(envConfigFile)
	envViper.AddConfigPath("./configs")
	envViper.AddConfigPath("../configs")
	envViper.AddConfigPath("../../configs")

	if err := envViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s config: %w", envConfigFile, err)
		}
	} else if err := v.MergeConfigMap(envViper.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to merge environment presets: %w", err)
	}

	var presets Presets
	if err := v.Unmarshal(&presets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presets: %w", err)
	}

	if err := presets.Validate(); err != nil {
		return nil, fmt.Errorf("presets validation failed: %w", err)
	}

	return &presets, nil
}

// Validate checks the loaded presets for misconfigured entries.
func (p *Presets) Validate() error {
	for _, route := range p.CacheRoutes {
		if route.Prefix == "" {
			return errors.New("cache route prefix must not be empty")
		}
		switch route.Scope {
		case ScopeNone, ScopePrincipal, ScopeDepartment:
		default:
			return fmt.Errorf("cache route %q has unknown scope %q", route.Prefix, route.Scope)
		}
		if route.TTLSeconds < 0 {
			return fmt.Errorf("cache route %q has a negative TTL", route.Prefix)
		}
	}

	for _, action := range p.ActionLimits {
		if action.Prefix == "" || action.Name == "" {
			return errors.New("action limit needs both a prefix and a name")
		}
		if action.MaxRequests < 1 || action.WindowSeconds < 1 {
			return fmt.Errorf("action limit %q needs a positive ceiling and window", action.Name)
		}
	}

	return nil
}
