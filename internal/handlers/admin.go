// Package handlers provides the HTTP handlers for the TITO platform
// service's operational surface: the admin API over the store, sessions,
// and scheduler, and the health endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/cache"
	"github.com/urtica-dioica/tito-sub002/internal/constants"
	"github.com/urtica-dioica/tito-sub002/internal/models"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
	"github.com/urtica-dioica/tito-sub002/internal/scheduler"
	"github.com/urtica-dioica/tito-sub002/internal/session"
)

// AdminHandler serves the administrative endpoints over the store, the
// session registry, the cache, and the scheduler. The router mounting it
// must already enforce admin authorization.
type AdminHandler struct {
	store       redis.Store
	sessions    *session.Manager
	invalidator *cache.Invalidator
	scheduler   *scheduler.Scheduler
	logger      *logrus.Logger
}

// NewAdminHandler creates a new admin handler with the provided
// dependencies.
func NewAdminHandler(
	store redis.Store,
	sessions *session.Manager,
	invalidator *cache.Invalidator,
	sched *scheduler.Scheduler,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		store:       store,
		sessions:    sessions,
		invalidator: invalidator,
		scheduler:   sched,
		logger:      logger,
	}
}

// RegisterRoutes registers the admin routes on the provided router.
func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/store/entries", h.GetEntry).Methods(http.MethodGet)
	router.HandleFunc("/store/entries", h.PutEntry).Methods(http.MethodPut)
	router.HandleFunc("/store/entries", h.DeleteEntry).Methods(http.MethodDelete)
	router.HandleFunc("/store/keys", h.ListKeys).Methods(http.MethodGet)
	router.HandleFunc("/store/stats", h.StoreStats).Methods(http.MethodGet)
	router.HandleFunc("/store/ping", h.StorePing).Methods(http.MethodGet)

	router.HandleFunc("/cache/clear", h.ClearCache).Methods(http.MethodPost)
	router.HandleFunc("/cache/invalidate/principal/{employeeId}", h.InvalidatePrincipal).Methods(http.MethodPost)
	router.HandleFunc("/cache/invalidate/department/{departmentId}", h.InvalidateDepartment).Methods(http.MethodPost)

	router.HandleFunc("/sessions/{employeeId}", h.ListSessions).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{employeeId}/force-logout", h.ForceLogout).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{employeeId}/{sessionId}", h.InvalidateSession).Methods(http.MethodDelete)

	router.HandleFunc("/scheduler", h.SchedulerStatus).Methods(http.MethodGet)
	router.HandleFunc("/scheduler/start", h.StartScheduler).Methods(http.MethodPost)
	router.HandleFunc("/scheduler/stop", h.StopScheduler).Methods(http.MethodPost)
	router.HandleFunc("/scheduler/jobs/{name}/trigger", h.TriggerJob).Methods(http.MethodPost)
}

// GetEntry handles GET /store/entries?key=...
// Returns the raw entry stored under the key. Absence is a 404; an entry
// holding an empty value is a 200 with an empty value.
func (h *AdminHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		h.writeAPIError(w, models.NewMissingParameter("key"))
		return
	}

	value, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			h.writeAPIError(w, models.NewNotFound("entry"))
			return
		}
		h.writeInternalError(w, err, "Failed to read entry")
		return
	}

	ttlSeconds := -1
	if ttl, ttlErr := h.store.TTL(r.Context(), key); ttlErr == nil && ttl > 0 {
		ttlSeconds = int(ttl.Seconds())
	}

	h.writeJSON(w, models.CacheEntryResponse{
		Key:        key,
		Value:      value,
		TTLSeconds: ttlSeconds,
	}, http.StatusOK)
}

// PutEntry handles PUT /store/entries
// Creates or replaces a raw entry. A zero TTL stores the entry without
// expiry.
func (h *AdminHandler) PutEntry(w http.ResponseWriter, r *http.Request) {
	var req models.CacheEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeAPIError(w, models.NewInvalidParameter("body", "must be valid JSON"))
		return
	}
	if req.Key == "" {
		h.writeAPIError(w, models.NewMissingParameter("key"))
		return
	}
	if req.TTLSeconds < 0 {
		h.writeAPIError(w, models.NewInvalidParameter("ttl_seconds", "must not be negative"))
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := h.store.Set(r.Context(), req.Key, req.Value, ttl); err != nil {
		h.writeInternalError(w, err, "Failed to store entry")
		return
	}

	h.logger.WithField("key", req.Key).Info("Admin stored entry")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEntry handles DELETE /store/entries?key=...
// Removes a single entry. Idempotent: deleting an absent key succeeds.
func (h *AdminHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		h.writeAPIError(w, models.NewMissingParameter("key"))
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		h.writeInternalError(w, err, "Failed to delete entry")
		return
	}

	h.logger.WithField("key", key).Info("Admin deleted entry")
	w.WriteHeader(http.StatusNoContent)
}

// ListKeys handles GET /store/keys?pattern=...
// Lists keys matching the glob pattern.
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		h.writeAPIError(w, models.NewMissingParameter("pattern"))
		return
	}

	keys, err := h.store.Keys(r.Context(), pattern)
	if err != nil {
		h.writeInternalError(w, err, "Failed to list keys")
		return
	}
	if keys == nil {
		keys = []string{}
	}

	h.writeJSON(w, models.KeyListResponse{
		Pattern: pattern,
		Count:   len(keys),
		Keys:    keys,
	}, http.StatusOK)
}

// StoreStats handles GET /store/stats.
func (h *AdminHandler) StoreStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeInternalError(w, err, "Failed to collect store stats")
		return
	}

	h.writeJSON(w, stats, http.StatusOK)
}

// StorePing handles GET /store/ping.
// Returns 200 when the store answers, 503 when it does not.
func (h *AdminHandler) StorePing(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.writeJSON(w, map[string]string{"status": "unreachable"}, http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// ClearCache handles POST /cache/clear?pattern=...
// Without a pattern, clears every cached response. With a pattern, deletes
// the matching keys; the pattern must stay under the service prefix so a
// typo cannot sweep sessions or counters along with cache entries.
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")

	var (
		cleared int
		err     error
	)
	switch {
	case pattern == "":
		cleared, err = h.invalidator.All(r.Context())
	case strings.HasPrefix(pattern, cache.KeyPrefix):
		cleared, err = h.store.DeletePattern(r.Context(), pattern)
	default:
		h.writeAPIError(w, models.NewInvalidParameter("pattern",
			fmt.Sprintf("must start with %q", cache.KeyPrefix)))
		return
	}
	if err != nil {
		h.writeInternalError(w, err, "Failed to clear response cache")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"pattern":      pattern,
		"keys_cleared": cleared,
	}).Warn("Admin cleared response cache")
	h.writeJSON(w, models.ClearResponse{Pattern: pattern, KeysCleared: cleared}, http.StatusOK)
}

// InvalidatePrincipal handles POST /cache/invalidate/principal/{employeeId}.
func (h *AdminHandler) InvalidatePrincipal(w http.ResponseWriter, r *http.Request) {
	employeeID := mux.Vars(r)["employeeId"]

	cleared, err := h.invalidator.Principal(r.Context(), employeeID)
	if err != nil {
		h.writeInternalError(w, err, "Failed to invalidate principal cache")
		return
	}

	h.writeJSON(w, models.ClearResponse{KeysCleared: cleared}, http.StatusOK)
}

// InvalidateDepartment handles POST /cache/invalidate/department/{departmentId}.
func (h *AdminHandler) InvalidateDepartment(w http.ResponseWriter, r *http.Request) {
	departmentID := mux.Vars(r)["departmentId"]

	cleared, err := h.invalidator.Department(r.Context(), departmentID)
	if err != nil {
		h.writeInternalError(w, err, "Failed to invalidate department cache")
		return
	}

	h.writeJSON(w, models.ClearResponse{KeysCleared: cleared}, http.StatusOK)
}

// ListSessions handles GET /sessions/{employeeId}.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	employeeID := mux.Vars(r)["employeeId"]

	records, err := h.sessions.ListActive(r.Context(), employeeID)
	if err != nil {
		h.writeInternalError(w, err, "Failed to list sessions")
		return
	}

	h.writeJSON(w, models.SessionListResponse{
		EmployeeID: employeeID,
		Count:      len(records),
		Sessions:   records,
	}, http.StatusOK)
}

// InvalidateSession handles DELETE /sessions/{employeeId}/{sessionId}.
// Idempotent.
func (h *AdminHandler) InvalidateSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.sessions.InvalidateOne(r.Context(), vars["employeeId"], vars["sessionId"]); err != nil {
		h.writeInternalError(w, err, "Failed to invalidate session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ForceLogout handles POST /sessions/{employeeId}/force-logout
// Removes every session the employee holds, across all devices.
func (h *AdminHandler) ForceLogout(w http.ResponseWriter, r *http.Request) {
	employeeID := mux.Vars(r)["employeeId"]

	cleared, err := h.sessions.InvalidateAll(r.Context(), employeeID)
	if err != nil {
		h.writeInternalError(w, err, "Failed to force logout")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"employee_id":      employeeID,
		"sessions_cleared": cleared,
	}).Info("Admin forced logout")

	h.writeJSON(w, models.ForceLogoutResponse{
		EmployeeID:      employeeID,
		SessionsCleared: cleared,
	}, http.StatusOK)
}

// SchedulerStatus handles GET /scheduler.
func (h *AdminHandler) SchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.scheduler.Status(), http.StatusOK)
}

// StartScheduler handles POST /scheduler/start. Idempotent.
func (h *AdminHandler) StartScheduler(w http.ResponseWriter, _ *http.Request) {
	h.scheduler.Start()
	h.logger.Info("Admin started scheduler")
	h.writeJSON(w, h.scheduler.Status(), http.StatusOK)
}

// StopScheduler handles POST /scheduler/stop. Blocks until any in-flight
// run finishes. Idempotent.
func (h *AdminHandler) StopScheduler(w http.ResponseWriter, _ *http.Request) {
	h.scheduler.Stop()
	h.logger.Info("Admin stopped scheduler")
	h.writeJSON(w, h.scheduler.Status(), http.StatusOK)
}

// TriggerJob handles POST /scheduler/jobs/{name}/trigger
// Runs the named job immediately and synchronously, outside its schedule.
// The request body may carry parameter overrides, e.g.
// {"params":{"retention_days":30}}.
//
// Responses:
//   - 200: Job ran to completion, result in the body
//   - 404: Unknown job name
//   - 500: The job's action failed
func (h *AdminHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req models.TriggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeAPIError(w, models.NewInvalidParameter("body", "must be valid JSON"))
			return
		}
	}

	h.logger.WithField("job", name).Info("Admin triggered job")

	result, elapsed, err := h.scheduler.Trigger(r.Context(), name, req.Params)
	if err != nil {
		var apiErr *models.APIError
		if errors.As(err, &apiErr) {
			h.writeAPIError(w, apiErr)
			return
		}
		h.logger.WithError(err).WithField("job", name).Error("Triggered job failed")
		h.writeAPIError(w, models.NewJobError(name, err))
		return
	}

	h.writeJSON(w, models.TriggerResponse{
		Job:      name,
		Count:    result.Count,
		Detail:   result.Detail,
		Duration: elapsed.String(),
	}, http.StatusOK)
}

// writeJSON writes a JSON response with the given status code.
func (h *AdminHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeAPIError writes an APIError with its status code.
func (h *AdminHandler) writeAPIError(w http.ResponseWriter, apiErr *models.APIError) {
	h.writeJSON(w, apiErr, apiErr.StatusCode)
}

// writeInternalError logs the failure and returns a generic 500.
func (h *AdminHandler) writeInternalError(w http.ResponseWriter, err error, message string) {
	h.logger.WithError(err).Error(message)
	h.writeAPIError(w, &models.APIError{
		Code:        "internal_error",
		Description: message,
		StatusCode:  http.StatusInternalServerError,
	})
}
