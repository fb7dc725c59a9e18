// Package config provides configuration management for the TITO platform
// service. It supports environment variable-based configuration with
// validation and default values for all service components including server,
// Redis, database, security, session, cache, scheduler, and logging settings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// MinAuthSecretLength is the minimum required length for the token
	// verification secret.
	MinAuthSecretLength = 32
	// MinPortNumber is the minimum valid port number.
	MinPortNumber = 1
	// MaxPortNumber is the maximum valid port number.
	MaxPortNumber = 65535
)

// Config represents the complete configuration for the platform service,
// aggregating all component-specific configurations.
type Config struct {
	// Environment holds environment-specific settings.
	Environment EnvironmentConfig `envconfig:"ENVIRONMENT"`
	// Server contains HTTP server configuration including ports, timeouts, and TLS settings.
	Server ServerConfig `envconfig:"SERVER"`
	// Redis contains Redis connection and pool configuration.
	Redis RedisConfig `envconfig:"REDIS"`
	// Database contains PostgreSQL configuration for the maintenance jobs.
	Database DatabaseConfig `envconfig:"POSTGRES"`
	// Auth contains credential verification settings for the principal resolver.
	Auth AuthConfig `envconfig:"AUTH"`
	// Security contains security-related settings like CORS and rate limiting.
	Security SecurityConfig `envconfig:"SECURITY"`
	// Session contains session tracking settings.
	Session SessionConfig `envconfig:"SESSION"`
	// Cache contains response cache settings.
	Cache CacheConfig `envconfig:"CACHE"`
	// Scheduler contains recurring maintenance job settings.
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
	// Logging contains logging configuration.
	Logging LoggingConfig `envconfig:"LOGGING"`
}

type Environment string

const (
	Local   Environment = "LOCAL"
	NonProd Environment = "NONPROD"
	Prod    Environment = "PROD"
)

// EnvironmentConfig holds environment-specific settings.
type EnvironmentConfig struct {
	// Environment indicates the current running environment (LOCAL, NONPROD, PROD).
	Environment Environment `envconfig:"ENV" default:"LOCAL"`
}

// ServerConfig holds HTTP server configuration including network settings,
// timeouts, and TLS certificate paths.
type ServerConfig struct {
	// Port is the HTTP server listening port.
	Port int `envconfig:"PORT"             default:"8080"`
	// Host is the network interface to bind to.
	Host string `envconfig:"HOST"             default:"0.0.0.0"`
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"     default:"15s"`
	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT"    default:"15s"`
	// IdleTimeout is the maximum amount of time to wait for keep-alive connections.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT"     default:"60s"`
	// ShutdownTimeout is the maximum time to wait for graceful server shutdown.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// TLSCert is the path to the TLS certificate file for HTTPS.
	TLSCert string `envconfig:"TLS_CERT"`
	// TLSKey is the path to the TLS private key file for HTTPS.
	TLSKey string `envconfig:"TLS_KEY"`
}

// RedisConfig contains Redis connection configuration including
// connection pool settings and timeouts.
type RedisConfig struct {
	// URL is the Redis connection URL.
	URL string `envconfig:"URL"           default:"redis://localhost:6379"`
	// Password is the Redis authentication password.
	Password string `envconfig:"PASSWORD"`
	// DB is the Redis database number to use.
	DB int `envconfig:"DB"            default:"0"`
	// MaxRetries is the maximum number of retry attempts for failed operations.
	MaxRetries int `envconfig:"MAX_RETRIES"   default:"3"`
	// PoolSize is the maximum number of socket connections.
	PoolSize int `envconfig:"POOL_SIZE"     default:"10"`
	// MinIdleConn is the minimum number of idle connections.
	MinIdleConn int `envconfig:"MIN_IDLE_CONN" default:"5"`
	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT"  default:"5s"`
	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"  default:"3s"`
	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	// PoolTimeout is the amount of time client waits for connection.
	PoolTimeout time.Duration `envconfig:"POOL_TIMEOUT"  default:"4s"`
	// IdleTimeout is the amount of time after which client closes idle connections.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT"  default:"300s"`
}

// DatabaseConfig contains PostgreSQL database connection configuration.
// The database is only used by the maintenance jobs (audit log pruning,
// file retention); the request path never touches it.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `envconfig:"HOST"                default:"localhost"`
	// Port is the PostgreSQL server port.
	Port int `envconfig:"PORT"                default:"5432"`
	// Database is the PostgreSQL database name.
	Database string `envconfig:"DB"                  default:"tito"`
	// Schema is the PostgreSQL schema name.
	Schema string `envconfig:"SCHEMA"              default:"public"`
	// User is the database username.
	User string `envconfig:"USER"`
	// Password is the database password.
	Password string `envconfig:"PASSWORD"`
	// SSLMode is the SSL connection mode (disable, require, verify-ca, verify-full).
	SSLMode string `envconfig:"SSL_MODE"            default:"require"`
	// MaxConn is the maximum number of connections in the pool.
	MaxConn int32 `envconfig:"MAX_CONN"            default:"10"`
	// MinConn is the minimum number of connections in the pool.
	MinConn int32 `envconfig:"MIN_CONN"            default:"2"`
	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME"   default:"1h"`
	// MaxConnIdleTime is the maximum idle time for a connection.
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME"  default:"30m"`
	// HealthCheckPeriod is how often to check database connectivity.
	HealthCheckPeriod time.Duration `envconfig:"HEALTH_CHECK_PERIOD" default:"30s"`
	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT"     default:"10s"`
}

// AuthConfig contains the settings the principal resolver needs to verify
// presented credentials. Credential issuance lives in the identity service;
// this service only verifies and extracts claims.
type AuthConfig struct {
	// Secret is the HMAC secret shared with the identity service
	// (required, minimum 32 characters).
	Secret string `envconfig:"SECRET"    required:"true"`
	// Issuer is the expected token issuer claim.
	Issuer string `envconfig:"ISSUER"    default:"tito-identity"`
	// Algorithm is the accepted signing algorithm.
	Algorithm string `envconfig:"ALGORITHM" default:"HS256"`
	// AdminRoles are the principal roles allowed on the admin endpoints.
	AdminRoles []string `envconfig:"ADMIN_ROLES" default:"admin,hr-admin"`
}

// SecurityConfig contains security-related settings including
// rate limiting and CORS configuration.
type SecurityConfig struct {
	// RateLimitMax is the per-client request ceiling per window.
	RateLimitMax int `envconfig:"RATE_LIMIT_MAX"    default:"100"`
	// RateLimitWindow is the fixed window for per-client rate limiting.
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	// PrincipalLimitMax is the per-principal request ceiling per window.
	PrincipalLimitMax int `envconfig:"PRINCIPAL_LIMIT_MAX"    default:"300"`
	// PrincipalLimitWindow is the fixed window for per-principal limiting.
	PrincipalLimitWindow time.Duration `envconfig:"PRINCIPAL_LIMIT_WINDOW" default:"1m"`
	// DepartmentLimitMax is the per-department request ceiling per window,
	// aggregated across every principal in the department. Zero disables
	// the department scope.
	DepartmentLimitMax int `envconfig:"DEPARTMENT_LIMIT_MAX"    default:"1000"`
	// DepartmentLimitWindow is the fixed window for per-department limiting.
	DepartmentLimitWindow time.Duration `envconfig:"DEPARTMENT_LIMIT_WINDOW" default:"1m"`
	// AllowedOrigins are the CORS allowed origins.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"   default:"*"`
	// AllowedMethods are the CORS allowed HTTP methods.
	AllowedMethods []string `envconfig:"ALLOWED_METHODS"   default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	// AllowedHeaders are the CORS allowed headers.
	AllowedHeaders []string `envconfig:"ALLOWED_HEADERS"   default:"*"`
	// ExposedHeaders are the CORS exposed headers.
	ExposedHeaders []string `envconfig:"EXPOSED_HEADERS"   default:"X-Cache,X-Ratelimit-Remaining,Retry-After"`
	// AllowCredentials determines if CORS allows credentials.
	AllowCredentials bool `envconfig:"ALLOW_CREDENTIALS" default:"true"`
	// MaxAge is the CORS preflight cache duration in seconds.
	MaxAge int `envconfig:"MAX_AGE"           default:"86400"`
	// TrustedProxies are the trusted proxy IP addresses.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// SessionConfig contains session tracking settings.
type SessionConfig struct {
	// TTL is the sliding expiration applied to session records.
	TTL time.Duration `envconfig:"TTL"           default:"24h"`
	// WriteTimeout bounds the fire-and-forget store write so session
	// bookkeeping can never pile up goroutines against a slow store.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	// Enabled toggles the response cache pipeline stage.
	Enabled bool `envconfig:"ENABLED"     default:"true"`
	// DefaultTTL applies to cached routes whose preset omits a TTL.
	DefaultTTL time.Duration `envconfig:"DEFAULT_TTL" default:"5m"`
	// MaxBodyBytes is the largest response body the cache will store.
	MaxBodyBytes int `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// SchedulerConfig contains recurring maintenance job settings.
type SchedulerConfig struct {
	// Enabled toggles starting the scheduler at boot.
	Enabled bool `envconfig:"ENABLED"             default:"true"`
	// FileRetentionAt is the daily HH:MM wall-clock slot for the file
	// retention sweep.
	FileRetentionAt string `envconfig:"FILE_RETENTION_AT"   default:"02:00"`
	// FileRetentionDays is how long uploaded attachments are kept.
	FileRetentionDays int `envconfig:"FILE_RETENTION_DAYS" default:"90"`
	// UploadDir is the directory holding uploaded attachment files.
	UploadDir string `envconfig:"UPLOAD_DIR"          default:"uploads"`
	// AuditPruneAt is the weekly slot for audit log pruning, as
	// "Weekday HH:MM" (e.g. "Sunday 03:30").
	AuditPruneAt string `envconfig:"AUDIT_PRUNE_AT"      default:"Sunday 03:30"`
	// AuditRetentionDays is how long audit log rows are kept.
	AuditRetentionDays int `envconfig:"AUDIT_RETENTION_DAYS" default:"365"`
}

// FileRetentionSlot returns the parsed daily slot for the file retention
// sweep. The raw value is validated at Load, so parsing cannot fail here.
func (c *SchedulerConfig) FileRetentionSlot() DaySlot {
	slot, _ := ParseDailySlot(c.FileRetentionAt)
	return slot
}

// AuditPruneSlot returns the parsed weekly slot for the audit log prune.
func (c *SchedulerConfig) AuditPruneSlot() (time.Weekday, DaySlot) {
	weekday, slot, _ := ParseWeeklySlot(c.AuditPruneAt)
	return weekday, slot
}

// LoggingConfig contains logging configuration including
// log level, format, and output destination.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `envconfig:"LEVEL"  default:"info"`
	// Format is the log output format (json, text).
	Format string `envconfig:"FORMAT" default:"json"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `envconfig:"OUTPUT" default:"stdout"`
}

// Load reads configuration from environment variables and returns
// a validated Config instance. It returns an error if configuration
// is invalid or required values are missing.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs comprehensive validation of all configuration values,
// ensuring they meet security and operational requirements.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required")
	}

	if len(c.Auth.Secret) < MinAuthSecretLength {
		return fmt.Errorf("auth secret must be at least %d characters long", MinAuthSecretLength)
	}

	if c.Server.Port < MinPortNumber || c.Server.Port > MaxPortNumber {
		return errors.New("server port must be between 1 and 65535")
	}

	if c.Security.RateLimitMax < 1 {
		return errors.New("rate limit max must be at least 1")
	}

	if c.Security.RateLimitWindow < time.Second {
		return errors.New("rate limit window must be at least 1 second")
	}

	if c.Session.TTL < time.Minute {
		return errors.New("session TTL must be at least 1 minute")
	}

	validAlgorithms := map[string]bool{
		"HS256": true, "HS384": true, "HS512": true,
	}
	if !validAlgorithms[c.Auth.Algorithm] {
		return fmt.Errorf("unsupported signing algorithm: %s", c.Auth.Algorithm)
	}

	if _, err := ParseDailySlot(c.Scheduler.FileRetentionAt); err != nil {
		return fmt.Errorf("invalid file retention slot: %w", err)
	}

	if _, _, err := ParseWeeklySlot(c.Scheduler.AuditPruneAt); err != nil {
		return fmt.Errorf("invalid audit prune slot: %w", err)
	}

	return nil
}

// ServerAddr returns the formatted server address string in host:port format.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsTLSEnabled returns true if both TLS certificate and key paths are configured.
func (c *Config) IsTLSEnabled() bool {
	return c.Server.TLSCert != "" && c.Server.TLSKey != ""
}

// DatabaseDSN returns the PostgreSQL connection string (Data Source Name).
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.User,
		c.Database.Password,
		c.Database.SSLMode,
		c.Database.Schema,
	)
}

// IsDatabaseConfigured returns true if database user and password are configured.
func (c *Config) IsDatabaseConfigured() bool {
	return c.Database.User != "" && c.Database.Password != ""
}
