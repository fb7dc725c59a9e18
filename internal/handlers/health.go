package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/constants"
	"github.com/urtica-dioica/tito-sub002/internal/database"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
	"github.com/urtica-dioica/tito-sub002/internal/scheduler"
)

// HealthCheckTimeout is the default timeout for health check operations.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler provides health check and monitoring endpoints.
type HealthHandler struct {
	config    *config.Config
	store     redis.Store
	dbMgr     *database.Manager
	sched     *scheduler.Scheduler
	logger    *logrus.Logger
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDegraded indicates the component has degraded performance.
	StatusDegraded HealthStatus = "degraded"
)

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Details    map[string]interface{}     `json:"details,omitempty"`
}

// ComponentHealth represents the health of an individual component.
type ComponentHealth struct {
	Status       HealthStatus `json:"status"`
	Message      string       `json:"message,omitempty"`
	LastChecked  time.Time    `json:"last_checked"`
	ResponseTime string       `json:"response_time,omitempty"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Metrics holds Prometheus metrics for monitoring.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreHealthy prometheus.Gauge

	// Scheduler metrics
	JobRunsTotal *prometheus.CounterVec

	// Health metrics
	HealthChecksTotal     *prometheus.CounterVec
	ComponentHealthStatus *prometheus.GaugeVec
}

// NewHealthHandler creates a new health check handler. Metrics live on a
// private registry so multiple handlers (tests, restarts) never collide on
// collector registration.
func NewHealthHandler(
	cfg *config.Config,
	store redis.Store,
	dbMgr *database.Manager,
	sched *scheduler.Scheduler,
	logger *logrus.Logger,
) *HealthHandler {
	metrics := NewMetrics()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.HTTPRequestsTotal,
		metrics.HTTPRequestDuration,
		metrics.StoreHealthy,
		metrics.JobRunsTotal,
		metrics.HealthChecksTotal,
		metrics.ComponentHealthStatus,
	)

	return &HealthHandler{
		config:    cfg,
		store:     store,
		dbMgr:     dbMgr,
		sched:     sched,
		logger:    logger,
		metrics:   metrics,
		registry:  registry,
		startTime: time.Now(),
	}
}

// NewMetrics creates and returns Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tito_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tito_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StoreHealthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tito_store_healthy",
				Help: "Whether the key-value store is reachable (1=healthy, 0=degraded)",
			},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tito_scheduler_job_runs_total",
				Help: "Total number of maintenance job executions",
			},
			[]string{"job", "status"},
		),
		HealthChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tito_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"endpoint", "status"},
		),
		ComponentHealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tito_component_health_status",
				Help: "Health status of service components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RegisterRoutes registers the health endpoints on the platform router and
// the Prometheus endpoint on the root router.
func (h *HealthHandler) RegisterRoutes(router *mux.Router, root *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/live", h.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Readiness).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Instrument records request counts and latency per route. Mounted as the
// outermost middleware so every request is observed, including rejected
// ones.
func (h *HealthHandler) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routeTemplate(r)
		h.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		h.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// ObserveJobRun feeds one maintenance job run outcome into the run counter.
// Wired up as the scheduler's run observer at startup.
func (h *HealthHandler) ObserveJobRun(job string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	h.metrics.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// routeTemplate returns the matched route pattern rather than the raw URL,
// keeping metric cardinality bounded when paths carry IDs.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// statusRecorder captures the response status for metrics labels.
type statusRecorder struct {
	http.ResponseWriter

	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Health provides a comprehensive health check including all components.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	h.logger.Debug("Processing health check request")

	components := make(map[string]ComponentHealth)
	overallStatus := StatusHealthy

	// The store is critical: the limiter fails open and the cache falls
	// through without it, but that is degraded service worth alerting on.
	storeHealth := h.checkStorage(ctx)
	components["redis"] = storeHealth
	if storeHealth.Status != StatusHealthy {
		overallStatus = StatusUnhealthy
	}

	// The database only backs maintenance jobs; losing it degrades, never
	// downs, the service.
	databaseHealth := h.checkDatabase(ctx)
	components["database"] = databaseHealth
	if databaseHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	schedulerHealth := h.checkScheduler()
	components["scheduler"] = schedulerHealth
	if schedulerHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	configHealth := h.checkConfiguration()
	components["configuration"] = configHealth
	if configHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	h.metrics.HealthChecksTotal.WithLabelValues("health", string(overallStatus)).Inc()

	for component, health := range components {
		healthValue := float64(0)
		if health.Status == StatusHealthy {
			healthValue = 1
		}
		h.metrics.ComponentHealthStatus.WithLabelValues(component).Set(healthValue)
	}

	storeValue := float64(0)
	if h.store.Healthy() {
		storeValue = 1
	}
	h.metrics.StoreHealthy.Set(storeValue)

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Version:    getVersion(),
		Uptime:     time.Since(h.startTime).String(),
		Components: components,
		Details: map[string]interface{}{
			"check_duration": time.Since(start).String(),
		},
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode health response")
	}

	h.logger.WithFields(logrus.Fields{
		"status":   overallStatus,
		"duration": time.Since(start).String(),
	}).Debug("Health check completed")
}

// Liveness provides a simple liveness check that returns 200 if the service
// is alive. Used by the orchestrator to decide on restarts.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	h.metrics.HealthChecksTotal.WithLabelValues("liveness", "healthy").Inc()

	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode liveness response")
	}
}

// Readiness checks if the service is ready to receive traffic. Only the
// store gates readiness; the database and scheduler degrade functionality
// without blocking traffic.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	h.logger.Debug("Processing readiness check")

	components := make(map[string]ComponentHealth)
	ready := true

	storeHealth := h.checkStorage(ctx)
	components["redis"] = storeHealth
	if storeHealth.Status == StatusUnhealthy {
		ready = false
	}

	components["database"] = h.checkDatabase(ctx)

	statusLabel := "ready"
	if !ready {
		statusLabel = "not_ready"
	}
	h.metrics.HealthChecksTotal.WithLabelValues("readiness", statusLabel).Inc()

	response := ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode readiness response")
	}

	h.logger.WithFields(logrus.Fields{
		"ready":    ready,
		"duration": time.Since(start).String(),
	}).Debug("Readiness check completed")
}

// checkStorage checks storage backend connectivity and performance.
func (h *HealthHandler) checkStorage(ctx context.Context) ComponentHealth {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := h.store.Ping(checkCtx)
	duration := time.Since(start)

	storageType := h.getStorageType()

	if err != nil {
		h.logger.WithError(err).Warn("Storage health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      storageType + " connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := storageType + " is healthy"

	// Only judge response time for Redis; the memory store is always fast.
	if storageType == "Redis" && duration > time.Second {
		status = StatusDegraded
		message = "Redis response time is slow"
	}

	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

// checkDatabase checks PostgreSQL connectivity. The database is optional:
// it only backs the maintenance jobs.
func (h *HealthHandler) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()

	if h.dbMgr == nil || !h.config.IsDatabaseConfigured() {
		return ComponentHealth{
			Status:      StatusHealthy,
			Message:     "Database not configured (optional)",
			LastChecked: time.Now(),
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := h.dbMgr.Ping(checkCtx)
	duration := time.Since(start)

	if err != nil {
		h.logger.WithError(err).Debug("Database health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      "PostgreSQL connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	if !h.dbMgr.IsAvailable() {
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      "Database marked as unavailable",
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := "PostgreSQL is healthy"

	if duration > 2*time.Second {
		status = StatusDegraded
		message = "PostgreSQL response time is slow"
	}

	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

// checkScheduler reports whether the maintenance scheduler is running when
// configuration says it should be.
func (h *HealthHandler) checkScheduler() ComponentHealth {
	if h.sched == nil {
		return ComponentHealth{
			Status:      StatusHealthy,
			Message:     "Scheduler not configured (optional)",
			LastChecked: time.Now(),
		}
	}

	if h.config.Scheduler.Enabled && !h.sched.Running() {
		return ComponentHealth{
			Status:      StatusDegraded,
			Message:     "Scheduler is enabled but not running",
			LastChecked: time.Now(),
		}
	}

	return ComponentHealth{
		Status:      StatusHealthy,
		Message:     "Scheduler is healthy",
		LastChecked: time.Now(),
	}
}

// getStorageType determines the type of storage backend being used.
func (h *HealthHandler) getStorageType() string {
	switch h.store.(type) {
	case *redis.Client:
		return "Redis"
	case *redis.MemoryStore:
		return "In-Memory"
	default:
		return "Unknown"
	}
}

// checkConfiguration validates critical configuration values.
func (h *HealthHandler) checkConfiguration() ComponentHealth {
	var issues []string

	if len(h.config.Auth.Secret) < config.MinAuthSecretLength {
		issues = append(issues, "Auth secret is too short")
	}

	if h.config.Session.TTL < time.Minute {
		issues = append(issues, "Session TTL is too short")
	}

	if h.config.Security.RateLimitMax <= 0 {
		issues = append(issues, "Rate limit max must be positive")
	}

	status := StatusHealthy
	message := "Configuration is valid"

	if len(issues) > 0 {
		status = StatusDegraded
		message = "Configuration issues: " + strings.Join(issues, ", ")
	}

	return ComponentHealth{
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
	}
}

// getVersion returns the service version (injected at build time in real
// deployments).
func getVersion() string {
	return "1.0.0"
}
