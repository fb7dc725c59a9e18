package principal

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/config"
)

// fingerprintLength bounds the credential fragment used in session keys.
const fingerprintLength = 16

// Claims is the JWT claim set issued by the TITO identity service. It
// extends the standard registered claims with the employee attributes the
// request infrastructure keys on.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the employee's platform role.
	Role string `json:"role"`
	// DepartmentID is the employee's department assignment.
	DepartmentID string `json:"department_id,omitempty"`
	// IsActive is the account state at issue time.
	IsActive bool `json:"is_active"`
	// Attributes carries additional application claims.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// JWTResolver validates HS256-signed bearer tokens issued by the identity
// service and maps them to principals.
//
// Security checks performed:
//   - Signature verification with the shared secret
//   - Algorithm verification to prevent algorithm confusion
//   - Expiry and not-before validation
//   - Issuer validation when an issuer is configured
type JWTResolver struct {
	config *config.AuthConfig
	logger *logrus.Logger
}

// NewJWTResolver creates a resolver for the configured signing secret.
func NewJWTResolver(cfg *config.AuthConfig, logger *logrus.Logger) *JWTResolver {
	return &JWTResolver{config: cfg, logger: logger}
}

// Resolve validates the bearer token and returns the principal it
// identifies. All validation failures collapse to ErrInvalidCredential so
// the response does not leak which check failed; the specific cause is
// logged at debug level.
func (r *JWTResolver) Resolve(_ context.Context, credential string) (*Principal, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{r.config.Algorithm}),
	}
	if r.config.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(r.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.GetSigningMethod(r.config.Algorithm) {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(r.config.Secret), nil
	}, parserOpts...)
	if err != nil {
		r.logger.WithError(err).Debug("Credential validation failed")
		return nil, ErrInvalidCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidCredential
	}

	if claims.Subject == "" {
		return nil, ErrInvalidCredential
	}

	return &Principal{
		ID:                    claims.Subject,
		Role:                  claims.Role,
		DepartmentID:          claims.DepartmentID,
		IsActive:              claims.IsActive,
		CredentialFingerprint: Fingerprint(credential),
		Attributes:            claims.Attributes,
	}, nil
}

// Fingerprint derives a stable fragment from the credential's signature
// segment. The signature changes with every issued token but is identical
// for repeated presentations of the same token, which is exactly the
// stability the session identifier needs. The fragment is already an
// opaque base64url string, so it can appear in store keys without leaking
// claim contents.
func Fingerprint(credential string) string {
	segment := credential
	if idx := strings.LastIndexByte(credential, '.'); idx >= 0 {
		segment = credential[idx+1:]
	}
	if len(segment) > fingerprintLength {
		segment = segment[:fingerprintLength]
	}
	return segment
}

// HasAdminRole reports whether the principal's role is in the configured
// admin role list.
func HasAdminRole(p *Principal, adminRoles []string) bool {
	if p == nil {
		return false
	}
	for _, role := range adminRoles {
		if strings.EqualFold(p.Role, role) {
			return true
		}
	}
	return false
}
