// Package models defines the shared data structures exchanged between the
// platform service components: session records, cache administration DTOs,
// scheduler status reports, and the boundary error types.
package models

import "time"

// SessionRecord is the per-device session bookkeeping entry stored in the
// key-value store. It is observability and soft-security data layered on top
// of stateless credential verification: request authorization never depends
// on its presence.
type SessionRecord struct {
	// SessionID is derived deterministically from the employee ID and a
	// credential fingerprint, so one employee can hold independent sessions
	// per device/credential.
	SessionID string `json:"session_id"`
	// EmployeeID is the authenticated principal's identifier.
	EmployeeID string `json:"employee_id"`
	// Role is the principal's role snapshot at session creation.
	Role string `json:"role,omitempty"`
	// DepartmentID is the principal's department snapshot at session creation.
	DepartmentID string `json:"department_id,omitempty"`
	// IsActive is the principal's active flag snapshot at session creation.
	// It is not re-checked during the TTL window; mid-session revocation is
	// the credential layer's responsibility.
	IsActive bool `json:"is_active"`
	// ClientAddr is the client address observed on the most recent request.
	ClientAddr string `json:"client_addr,omitempty"`
	// UserAgent is the user agent observed on the most recent request.
	UserAgent string `json:"user_agent,omitempty"`
	// CreatedAt is when the session record was first created.
	CreatedAt time.Time `json:"created_at"`
	// LastActivity is updated on every tracked request.
	LastActivity time.Time `json:"last_activity"`
}
