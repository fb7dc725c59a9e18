package middleware

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/constants"
	"github.com/urtica-dioica/tito-sub002/internal/models"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
)

// Authenticate resolves the bearer credential, attaches the principal to
// the request context, and records session activity. Requests without a
// credential continue as anonymous; route-level authorization decides
// whether that is acceptable. Requests presenting an invalid credential
// are rejected: a bad credential is an error, not anonymity.
//
// Session tracking is fire-and-forget. The store write happens off the
// request path, so a slow or unavailable store cannot add latency here.
func (m *Stack) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, present := bearerCredential(r)
		if !present {
			next.ServeHTTP(w, r)
			return
		}

		p, err := m.resolver.Resolve(r.Context(), credential)
		if err != nil {
			m.writeError(w, &models.APIError{
				Code:        "invalid_credential",
				Description: "The presented credential is missing, expired, or malformed",
				StatusCode:  http.StatusUnauthorized,
			})
			return
		}

		ctx := principal.NewContext(r.Context(), p)
		m.sessions.Track(ctx, p, ClientAddr(r), r.UserAgent())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests whose principal is missing or lacks one of
// the configured admin roles. Must run after Authenticate.
//
// Returns:
//   - 401 Unauthorized: no principal on the request
//   - 403 Forbidden: principal present but not an admin
func (m *Stack) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principal.FromContext(r.Context())
		if p == nil {
			m.writeError(w, &models.APIError{
				Code:        "authentication_required",
				Description: "Administrative endpoints require a credential",
				StatusCode:  http.StatusUnauthorized,
			})
			return
		}

		if !principal.HasAdminRole(p, m.config.Auth.AdminRoles) {
			m.logger.WithFields(logrus.Fields{
				"employee_id": p.ID,
				"role":        p.Role,
				"path":        r.URL.Path,
			}).Warn("Insufficient permissions for admin endpoint")
			m.writeError(w, &models.APIError{
				Code:        "insufficient_permissions",
				Description: "This endpoint requires an administrative role",
				StatusCode:  http.StatusForbidden,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerCredential extracts the bearer token from the Authorization
// header. The second return reports whether a credential was presented at
// all, malformed or not.
func bearerCredential(r *http.Request) (string, bool) {
	header := r.Header.Get(constants.HeaderAuthorization)
	if header == "" {
		return "", false
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		// A non-bearer Authorization header still counts as presenting a
		// credential; it resolves as invalid.
		return header, true
	}
	return token, true
}
