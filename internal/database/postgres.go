// Package database manages the PostgreSQL connection pool used by the
// maintenance jobs. The request path never touches the database, so the
// pool is allowed to be absent: when credentials are not configured, or
// the server is unreachable, the manager reports unavailable and the jobs
// that need it skip their run instead of failing the service.
package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/config"
)

const healthCheckTimeout = 5 * time.Second

// ErrUnavailable is returned when a database operation is attempted while
// the database is not available.
var ErrUnavailable = errors.New("database is not available")

// Manager manages the PostgreSQL connection pool and its health monitoring.
type Manager struct {
	pool      *pgxpool.Pool
	config    *config.Config
	logger    *logrus.Logger
	available bool
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewManager creates a database manager. When credentials are not
// configured it returns a manager that simply reports unavailable; when
// they are, it connects eagerly and keeps retrying in the background, so
// a database that comes up after the service does is picked up without a
// restart.
func NewManager(cfg *config.Config, logger *logrus.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	manager := &Manager{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.IsDatabaseConfigured() {
		if err := manager.connect(); err != nil {
			logger.WithError(err).Warn("Failed to connect to PostgreSQL on startup, will retry periodically")
		}
		go manager.healthMonitor()
	} else {
		logger.Info("PostgreSQL not configured, maintenance jobs that need it will skip their runs")
	}

	return manager
}

// connect establishes the connection pool.
func (m *Manager) connect() error {
	poolConfig, err := pgxpool.ParseConfig(m.config.DatabaseDSN())
	if err != nil {
		return err
	}

	dbCfg := &m.config.Database
	poolConfig.MaxConns = dbCfg.MaxConn
	poolConfig.MinConns = dbCfg.MinConn
	poolConfig.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dbCfg.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = dbCfg.ConnectTimeout

	ctx, cancel := context.WithTimeout(m.ctx, dbCfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return err
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return pingErr
	}

	m.mu.Lock()
	if m.pool != nil {
		m.pool.Close()
	}
	m.pool = pool
	m.available = true
	m.mu.Unlock()

	m.logger.Info("Connected to PostgreSQL")
	return nil
}

// healthMonitor periodically checks connectivity and reconnects when the
// connection is lost.
func (m *Manager) healthMonitor() {
	ticker := time.NewTicker(m.config.Database.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

// checkHealth pings the pool, flipping availability and reconnecting as
// needed.
func (m *Manager) checkHealth() {
	m.mu.RLock()
	pool := m.pool
	wasAvailable := m.available
	m.mu.RUnlock()

	if pool == nil {
		if err := m.connect(); err != nil {
			m.logger.WithError(err).Debug("PostgreSQL connection attempt failed")
		}
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, healthCheckTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		m.mu.Lock()
		m.available = false
		m.mu.Unlock()

		if wasAvailable {
			m.logger.WithError(err).Warn("PostgreSQL health check failed, connection lost")
		}

		if reconnectErr := m.connect(); reconnectErr != nil {
			m.logger.WithError(reconnectErr).Debug("PostgreSQL reconnection attempt failed")
		}
		return
	}

	m.mu.Lock()
	restored := !m.available
	m.available = true
	m.mu.Unlock()

	if restored {
		m.logger.Info("PostgreSQL connection restored")
	}
}

// IsAvailable reports whether the database can currently serve queries.
func (m *Manager) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// Pool returns the connection pool, or nil when the database is
// unavailable.
func (m *Manager) Pool() *pgxpool.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.available {
		return m.pool
	}
	return nil
}

// Ping checks connectivity, returning ErrUnavailable when there is no
// usable pool.
func (m *Manager) Ping(ctx context.Context) error {
	pool := m.Pool()
	if pool == nil {
		return ErrUnavailable
	}
	return pool.Ping(ctx)
}

// Close shuts down the pool and stops health monitoring.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
	m.available = false
}
