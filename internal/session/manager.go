// Package session tracks which employees are actively using the platform.
// A session is a store record with a sliding TTL: every authenticated
// request pushes the expiry a full day out, so the record dies only after
// a day of silence. Sessions are observational, not authoritative: the
// credential alone decides authentication, and session writes happen off
// the request path so they can never add latency or failures to it.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/models"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
)

// keyPrefix namespaces every session record in the store.
const keyPrefix = redis.KeyPrefix + "session:"

// sessionIDLength is the hex length of a derived session identifier.
const sessionIDLength = 32

// Manager tracks active sessions in the shared store.
type Manager struct {
	store  redis.Store
	ttl    time.Duration
	write  time.Duration
	logger *logrus.Logger
}

// NewManager creates a session manager with the configured sliding TTL.
func NewManager(store redis.Store, cfg *config.SessionConfig, logger *logrus.Logger) *Manager {
	return &Manager{
		store:  store,
		ttl:    cfg.TTL,
		write:  cfg.WriteTimeout,
		logger: logger,
	}
}

// DeriveSessionID derives the deterministic session identifier for a
// principal and credential. The same employee presenting the same
// credential always lands on the same session record, so repeated requests
// refresh one session instead of minting new ones; a re-login issues a new
// credential and therefore a new session.
func DeriveSessionID(principalID, credentialFingerprint string) string {
	sum := sha256.Sum256([]byte(principalID + ":" + credentialFingerprint))
	return hex.EncodeToString(sum[:])[:sessionIDLength]
}

// sessionKey builds the store key for one session record.
func sessionKey(employeeID, sessionID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, employeeID, sessionID)
}

// Track records request activity for the principal without blocking the
// caller. The write happens on a background goroutine with its own
// deadline, detached from the request context so an already-finished
// request cannot cancel it. Failures are logged and dropped; session
// tracking must never affect request handling.
func (m *Manager) Track(ctx context.Context, p *principal.Principal, clientAddr, userAgent string) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.write)

	go func() {
		defer cancel()
		if err := m.Touch(detached, p, clientAddr, userAgent); err != nil {
			m.logger.WithError(err).WithField("employee_id", p.ID).Warn("Session tracking write failed")
		}
	}()
}

// Touch synchronously creates or refreshes the principal's session record,
// resetting the sliding TTL to its full length. Exposed for callers that
// need the write to complete, such as the login handler and tests; request
// middleware uses Track.
func (m *Manager) Touch(ctx context.Context, p *principal.Principal, clientAddr, userAgent string) error {
	now := time.Now().UTC()
	sessionID := DeriveSessionID(p.ID, p.CredentialFingerprint)
	key := sessionKey(p.ID, sessionID)

	record := models.SessionRecord{
		SessionID:    sessionID,
		EmployeeID:   p.ID,
		Role:         p.Role,
		DepartmentID: p.DepartmentID,
		IsActive:     p.IsActive,
		ClientAddr:   clientAddr,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
	}

	// Preserve the original creation time on refresh.
	if existing, err := m.get(ctx, key); err == nil {
		record.CreatedAt = existing.CreatedAt
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	return m.store.Set(ctx, key, string(payload), m.ttl)
}

// Get returns one session record, or redis.ErrNotFound when the session
// does not exist or has expired.
func (m *Manager) Get(ctx context.Context, employeeID, sessionID string) (*models.SessionRecord, error) {
	return m.get(ctx, sessionKey(employeeID, sessionID))
}

func (m *Manager) get(ctx context.Context, key string) (*models.SessionRecord, error) {
	payload, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var record models.SessionRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}

	return &record, nil
}

// ListActive returns every live session the employee holds, one per
// device or credential. Records that fail to decode are skipped with a
// warning rather than failing the listing.
func (m *Manager) ListActive(ctx context.Context, employeeID string) ([]models.SessionRecord, error) {
	keys, err := m.store.Keys(ctx, sessionKey(employeeID, "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	records := make([]models.SessionRecord, 0, len(keys))
	for _, key := range keys {
		record, getErr := m.get(ctx, key)
		if getErr != nil {
			m.logger.WithError(getErr).WithField("key", key).Warn("Skipping unreadable session record")
			continue
		}
		records = append(records, *record)
	}

	return records, nil
}

// InvalidateOne removes a single session. Idempotent.
func (m *Manager) InvalidateOne(ctx context.Context, employeeID, sessionID string) error {
	return m.store.Delete(ctx, sessionKey(employeeID, sessionID))
}

// InvalidateAll removes every session the employee holds and returns the
// number removed. Used for forced logout when an account is deactivated or
// compromised.
func (m *Manager) InvalidateAll(ctx context.Context, employeeID string) (int, error) {
	cleared, err := m.store.DeletePattern(ctx, sessionKey(employeeID, "*"))
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate sessions: %w", err)
	}

	if cleared > 0 {
		m.logger.WithFields(logrus.Fields{
			"employee_id":      employeeID,
			"sessions_cleared": cleared,
		}).Info("Invalidated all sessions for employee")
	}
	return cleared, nil
}
