package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifier(t *testing.T) {
	tests := []struct {
		name    string
		config  VerifierConfig
		wantErr bool
	}{
		{"shared", VerifierConfig{Mode: ModeShared, Secret: "s"}, false},
		{"default mode", VerifierConfig{Secret: "s"}, false},
		{"jwt", VerifierConfig{Mode: ModeJWT, Secret: "s"}, false},
		{"empty secret", VerifierConfig{Mode: ModeShared}, true},
		{"unknown mode", VerifierConfig{Mode: "oauth", Secret: "s"}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewVerifier(test.config)
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSharedMode(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Secret: "change-me"})
	require.NoError(t, err)
	assert.Equal(t, ModeShared, v.Mode())

	claims, err := v.VerifyToken("change-me")
	require.NoError(t, err)
	assert.Equal(t, SharedSubject, claims.Subject)
	assert.True(t, claims.HasScope(ScopeControl))
	assert.True(t, claims.HasScope(ScopeTelemetry))

	for _, bad := range []string{"", "  ", "change-me ", "CHANGE-ME", "change"} {
		_, err := v.VerifyToken(bad)
		assert.True(t, errors.Is(err, ErrUnauthorized), "token %q", bad)
	}
}

func TestJWTMode(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Mode: ModeJWT, Secret: "jwt-secret"})
	require.NoError(t, err)

	token, err := v.Sign("alice", []string{ScopeControl}, time.Minute)
	require.NoError(t, err)

	claims, err := v.Authorize(token, ScopeControl)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	_, err = v.Authorize(token, ScopeTelemetry)
	assert.True(t, errors.Is(err, ErrForbidden))

	// The bare shared secret is not a valid JWT.
	_, err = v.VerifyToken("jwt-secret")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestJWTRejections(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Mode: ModeJWT, Secret: "jwt-secret"})
	require.NoError(t, err)

	other, err := NewVerifier(VerifierConfig{Mode: ModeJWT, Secret: "other"})
	require.NoError(t, err)
	wrongKey, err := other.Sign("mallory", []string{ScopeControl}, time.Minute)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "bob",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scopes": []string{ScopeControl},
	}).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"sub": "bob",
	}).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"wrong key":  wrongKey,
		"expired":    expired,
		"no subject": noSubject,
		"wrong alg":  wrongAlg,
		"garbage":    "not.a.jwt",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyToken(token)
			assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
		})
	}
}

func TestScopeClaimString(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Mode: ModeJWT, Secret: "jwt-secret"})
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "dash",
		"scope": "read telemetry",
	}).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	claims, err := v.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{ScopeRead, ScopeTelemetry}, claims.Scopes)
}
