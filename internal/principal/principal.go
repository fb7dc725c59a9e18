// Package principal resolves the authenticated caller of a request. The
// rest of the request infrastructure (session tracking, per-principal rate
// limits, principal-scoped caching) only ever sees the Principal value, so
// swapping the credential mechanism never touches those components.
package principal

import (
	"context"
	"errors"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	// ID is the employee identifier, stable across sessions.
	ID string `json:"id"`
	// Role is the employee's platform role (employee, department-head,
	// hr-admin, admin).
	Role string `json:"role"`
	// DepartmentID scopes department-level caching and invalidation.
	// Empty for principals without a department assignment.
	DepartmentID string `json:"department_id,omitempty"`
	// IsActive is the account state captured when the credential was
	// issued. It is a snapshot: deactivating an account does not revoke
	// credentials already in flight until they expire.
	IsActive bool `json:"is_active"`
	// CredentialFingerprint is a stable fragment of the presented
	// credential, used to derive the session identifier. Two requests
	// carrying the same credential always produce the same fingerprint.
	CredentialFingerprint string `json:"-"`
	// Attributes carries any additional claims the credential included.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Resolver turns a bearer credential into a Principal.
type Resolver interface {
	// Resolve validates the credential and returns the principal it
	// identifies. Returns ErrInvalidCredential for malformed, expired, or
	// tampered credentials.
	Resolve(ctx context.Context, credential string) (*Principal, error)
}

// ErrInvalidCredential is returned when a credential cannot be validated.
var ErrInvalidCredential = errors.New("invalid credential")

type contextKey struct{}

// NewContext returns a context carrying the resolved principal.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal attached to the request context, or
// nil for unauthenticated requests.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}
