package principal_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/principal"
)

const (
	testSecret = "test-secret-key-for-credential-testing-0123456789" // pragma: allowlist secret
	testIssuer = "tito-identity"
)

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		Secret:    testSecret,
		Issuer:    testIssuer,
		Algorithm: "HS256",
	}
}

func testResolver() *principal.JWTResolver {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return principal.NewJWTResolver(testAuthConfig(), logger)
}

// signToken issues a test credential with the given claims.
func signToken(t *testing.T, secret string, claims *principal.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func employeeClaims(employeeID string) *principal.Claims {
	now := time.Now()
	return &principal.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employeeID,
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Role:         "employee",
		DepartmentID: "dept-eng",
		IsActive:     true,
	}
}

func TestJWTResolverResolve(t *testing.T) {
	resolver := testResolver()

	credential := signToken(t, testSecret, employeeClaims("emp-1"))

	p, err := resolver.Resolve(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", p.ID)
	assert.Equal(t, "employee", p.Role)
	assert.Equal(t, "dept-eng", p.DepartmentID)
	assert.True(t, p.IsActive)
	assert.NotEmpty(t, p.CredentialFingerprint)
}

func TestJWTResolverRejections(t *testing.T) {
	resolver := testResolver()

	expired := employeeClaims("emp-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongIssuer := employeeClaims("emp-1")
	wrongIssuer.Issuer = "someone-else"

	noSubject := employeeClaims("")

	tests := []struct {
		name       string
		credential string
	}{
		{name: "malformed", credential: "not.a.credential"},
		{name: "empty", credential: ""},
		{name: "wrong_secret", credential: signToken(t, "another-secret-entirely-0123456789abcdef", employeeClaims("emp-1"))},
		{name: "expired", credential: signToken(t, testSecret, expired)},
		{name: "wrong_issuer", credential: signToken(t, testSecret, wrongIssuer)},
		{name: "missing_subject", credential: signToken(t, testSecret, noSubject)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tt.credential)
			assert.ErrorIs(t, err, principal.ErrInvalidCredential)
		})
	}
}

func TestJWTResolverRejectsAlgorithmConfusion(t *testing.T) {
	resolver := testResolver()

	// A token signed with "none" must never validate.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, employeeClaims("emp-1"))
	credential, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), credential)
	assert.ErrorIs(t, err, principal.ErrInvalidCredential)
}

func TestFingerprintIsStablePerCredential(t *testing.T) {
	credential := signToken(t, testSecret, employeeClaims("emp-1"))
	other := signToken(t, testSecret, employeeClaims("emp-2"))

	assert.Equal(t, principal.Fingerprint(credential), principal.Fingerprint(credential))
	assert.NotEqual(t, principal.Fingerprint(credential), principal.Fingerprint(other))
	assert.LessOrEqual(t, len(principal.Fingerprint(credential)), 16)
}

func TestHasAdminRole(t *testing.T) {
	adminRoles := []string{"admin", "hr-admin"}

	assert.True(t, principal.HasAdminRole(&principal.Principal{Role: "admin"}, adminRoles))
	assert.True(t, principal.HasAdminRole(&principal.Principal{Role: "HR-Admin"}, adminRoles))
	assert.False(t, principal.HasAdminRole(&principal.Principal{Role: "employee"}, adminRoles))
	assert.False(t, principal.HasAdminRole(nil, adminRoles))
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, principal.FromContext(ctx))

	p := &principal.Principal{ID: "emp-1"}
	ctx = principal.NewContext(ctx, p)
	assert.Same(t, p, principal.FromContext(ctx))
}
