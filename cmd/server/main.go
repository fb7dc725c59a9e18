// Package main provides the entry point for the TITO platform service.
// It initializes the shared store, session tracking, rate limiting,
// response caching, and the maintenance scheduler, sets up HTTP routes
// with the middleware pipeline, and starts the server with graceful
// shutdown support.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/cache"
	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/constants"
	"github.com/urtica-dioica/tito-sub002/internal/database"
	"github.com/urtica-dioica/tito-sub002/internal/handlers"
	"github.com/urtica-dioica/tito-sub002/internal/jobs"
	"github.com/urtica-dioica/tito-sub002/internal/middleware"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
	"github.com/urtica-dioica/tito-sub002/internal/ratelimit"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
	"github.com/urtica-dioica/tito-sub002/internal/scheduler"
	"github.com/urtica-dioica/tito-sub002/internal/session"
	"github.com/urtica-dioica/tito-sub002/pkg/logger"
)

func main() {
	// Load .env.local only in development.
	goEnv := os.Getenv("GO_ENV")
	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env.local file: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info("Starting TITO platform service")
	log.WithFields(logrus.Fields{
		"environment": cfg.Environment.Environment,
		"port":        cfg.Server.Port,
		"host":        cfg.Server.Host,
		"tls":         cfg.IsTLSEnabled(),
	}).Info("Service configuration loaded")

	store := initializeStore(cfg, log)
	defer closeStore(store, log)

	dbMgr := database.NewManager(cfg, log)
	defer closeDatabase(dbMgr, log)

	presets, err := config.LoadPresets(cfg.Environment.Environment)
	if err != nil {
		log.WithError(err).Error("Failed to load route presets, using defaults")
		presets = config.DefaultPresets()
	}

	sched := initializeScheduler(cfg, store, dbMgr, log)
	defer sched.Stop()

	server := setupServer(cfg, presets, store, dbMgr, sched, log)

	if cfg.Scheduler.Enabled {
		sched.Start()
	} else {
		log.Info("Scheduler disabled by configuration")
	}

	runServer(server, cfg, log)
}

// initializeStore connects to Redis, falling back to the in-memory store so
// the service starts degraded rather than not at all.
func initializeStore(cfg *config.Config, log *logrus.Logger) redis.Store {
	store, err := redis.NewClient(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Failed to connect to Redis, falling back to in-memory store")
		log.Warn("Note: In-memory store will not persist data between restarts")
		return redis.NewMemoryStore(log)
	}

	log.Info("Successfully connected to Redis store")
	return store
}

// initializeScheduler builds the maintenance scheduler with the two
// housekeeping jobs registered.
func initializeScheduler(
	cfg *config.Config,
	store redis.Store,
	dbMgr *database.Manager,
	log *logrus.Logger,
) *scheduler.Scheduler {
	sched := scheduler.New(store, log)

	for _, job := range []scheduler.Job{
		jobs.NewFileRetentionSweep(&cfg.Scheduler, dbMgr, log),
		jobs.NewAuditLogPrune(&cfg.Scheduler, dbMgr, log),
	} {
		if err := sched.Register(job); err != nil {
			log.WithError(err).WithField("job", job.Name).Error("Failed to register maintenance job")
		}
	}

	return sched
}

func closeStore(store redis.Store, log *logrus.Logger) {
	if err := store.Close(); err != nil {
		log.WithError(err).Error("Failed to close store connection")
	}
}

func closeDatabase(dbMgr *database.Manager, log *logrus.Logger) {
	if dbMgr != nil {
		dbMgr.Close()
		log.Info("Database connections closed")
	}
}

func setupServer(
	cfg *config.Config,
	presets *config.Presets,
	store redis.Store,
	dbMgr *database.Manager,
	sched *scheduler.Scheduler,
	log *logrus.Logger,
) *http.Server {
	resolver := principal.NewJWTResolver(&cfg.Auth, log)
	sessions := session.NewManager(store, &cfg.Session, log)
	limiter := ratelimit.New(store, log)
	responses := cache.New(store, &cfg.Cache, log)
	invalidator := cache.NewInvalidator(store, log)

	stack := middleware.NewStack(cfg, presets, limiter, sessions, responses, invalidator, resolver, log)

	healthHandler := handlers.NewHealthHandler(cfg, store, dbMgr, sched, log)
	adminHandler := handlers.NewAdminHandler(store, sessions, invalidator, sched, log)

	sched.SetObserver(healthHandler.ObserveJobRun)

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(notFound)

	platformRouter := router.PathPrefix("/api/v1/platform").Subrouter()
	healthHandler.RegisterRoutes(platformRouter, router)

	adminRouter := platformRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(stack.RequireAdmin)
	adminHandler.RegisterRoutes(adminRouter)

	finalHandler := stack.Chain(
		router,
		healthHandler.Instrument,
		stack.Recovery,
		stack.RequestLogger,
		stack.SecurityHeaders,
		stack.CORS,
		stack.Authenticate,
		stack.RateLimit,
		stack.ResponseCache,
	)

	return &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// notFound answers unmatched routes with a JSON body consistent with the
// admin error shape.
func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "not_found"})
}

func runServer(server *http.Server, cfg *config.Config, log *logrus.Logger) {
	go startServer(server, cfg, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	} else {
		log.Info("Server exited gracefully")
	}
}

func startServer(server *http.Server, cfg *config.Config, log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"addr": server.Addr,
		"tls":  cfg.IsTLSEnabled(),
	}).Info("Starting HTTP server")

	var err error
	if cfg.IsTLSEnabled() {
		err = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
	} else {
		err = server.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("Failed to start server")
	}
}
