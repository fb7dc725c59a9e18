package models

import "time"

// CacheEntryRequest is the body for creating or replacing a raw cache entry
// through the admin API.
type CacheEntryRequest struct {
	// Key is the full store key to write.
	Key string `json:"key"`
	// Value is the opaque payload to store.
	Value string `json:"value"`
	// TTLSeconds is the entry lifetime; zero means no expiry.
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// CacheEntryResponse is the admin representation of a stored entry.
type CacheEntryResponse struct {
	Key string `json:"key"`
	// Value is the stored payload. An entry can exist with an empty value;
	// absence is reported as 404, never as an empty value.
	Value string `json:"value"`
	// TTLSeconds is the remaining lifetime, -1 when the entry has no expiry.
	TTLSeconds int `json:"ttl_seconds"`
}

// KeyListResponse lists store keys matching a glob pattern.
type KeyListResponse struct {
	Pattern string   `json:"pattern"`
	Count   int      `json:"count"`
	Keys    []string `json:"keys"`
}

// ClearResponse reports the outcome of a pattern-scoped bulk delete.
type ClearResponse struct {
	Pattern     string `json:"pattern,omitempty"`
	KeysCleared int    `json:"keys_cleared"`
}

// StoreStats aggregates key-value store statistics for the admin API.
type StoreStats struct {
	// KeyCount is the number of keys under the service prefix.
	KeyCount int `json:"key_count"`
	// MemoryUsage is the store's reported memory usage, human readable.
	// "unavailable" when the backend does not expose it.
	MemoryUsage string `json:"memory_usage"`
	// Healthy reports current store connectivity.
	Healthy bool `json:"healthy"`
}

// SessionListResponse lists the active sessions held by one employee.
type SessionListResponse struct {
	EmployeeID string          `json:"employee_id"`
	Count      int             `json:"count"`
	Sessions   []SessionRecord `json:"sessions"`
}

// ForceLogoutResponse reports the result of invalidating every session an
// employee holds.
type ForceLogoutResponse struct {
	EmployeeID      string `json:"employee_id"`
	SessionsCleared int    `json:"sessions_cleared"`
}

// JobStatus describes one registered scheduler job.
type JobStatus struct {
	Name string `json:"name"`
	// Rule is the human-readable recurrence rule (e.g. "daily at 02:00").
	Rule string `json:"rule"`
	// NextRunAt is tracked explicitly by the scheduler alongside the timer
	// handle; zero when the scheduler is stopped.
	NextRunAt time.Time `json:"next_run_at,omitzero"`
	// LastRunAt is the start time of the most recent scheduled execution.
	LastRunAt time.Time `json:"last_run_at,omitzero"`
	// LastError holds the most recent scheduled execution failure, if any.
	LastError string `json:"last_error,omitempty"`
}

// SchedulerStatus is the scheduler admin status report.
type SchedulerStatus struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// TriggerRequest carries optional parameters for a manually triggered job,
// e.g. {"retention_days": 30}.
type TriggerRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// TriggerResponse reports the synchronous result of a manual job run.
type TriggerResponse struct {
	Job string `json:"job"`
	// Count is the job's primary result metric (records swept, rows pruned).
	Count int `json:"count"`
	// Detail is an optional human-readable result description.
	Detail string `json:"detail,omitempty"`
	// Duration is the wall time the run took.
	Duration string `json:"duration"`
}
