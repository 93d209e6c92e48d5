package auth

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Verification modes.
const (
	ModeShared = "shared"
	ModeJWT    = "jwt"
)

// Scopes.
const (
	ScopeRead      = "read"
	ScopeControl   = "control"
	ScopeTelemetry = "telemetry"
)

// SharedSubject names the operator in shared mode, where tokens carry no
// identity.
const SharedSubject = "operator"

// Verification errors.
var (
	ErrUnauthorized = errors.New("UNAUTHORIZED")
	ErrForbidden    = errors.New("FORBIDDEN")
)

// Claims is the verified identity behind a token.
type Claims struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// VerifierConfig selects the mode and secret.
type VerifierConfig struct {
	Mode   string
	Secret string
}

// Verifier checks tokens carried in websocket messages and HTTP headers.
type Verifier struct {
	config VerifierConfig
	secret []byte
}

// NewVerifier creates a verifier. An empty mode means shared.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	if config.Mode == "" {
		config.Mode = ModeShared
	}
	if config.Secret == "" {
		return nil, errors.New("auth secret cannot be empty")
	}
	switch config.Mode {
	case ModeShared, ModeJWT:
	default:
		return nil, errors.Errorf("unsupported auth mode: %s", config.Mode)
	}

	return &Verifier{
		config: config,
		secret: []byte(config.Secret),
	}, nil
}

// Mode returns the verification mode.
func (v *Verifier) Mode() string {
	return v.config.Mode
}

// VerifyToken verifies token and returns its claims.
func (v *Verifier) VerifyToken(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.Wrap(ErrUnauthorized, "token cannot be empty")
	}

	if v.config.Mode == ModeJWT {
		return v.verifyJWT(token)
	}

	if subtle.ConstantTimeCompare([]byte(token), v.secret) != 1 {
		return nil, errors.Wrap(ErrUnauthorized, "token mismatch")
	}
	return &Claims{
		Subject: SharedSubject,
		Scopes:  []string{ScopeRead, ScopeControl, ScopeTelemetry},
	}, nil
}

// Authorize verifies token and requires scope.
func (v *Verifier) Authorize(token, scope string) (*Claims, error) {
	claims, err := v.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	if !claims.HasScope(scope) {
		return nil, errors.Wrapf(ErrForbidden, "%s lacks scope %s", claims.Subject, scope)
	}
	return claims, nil
}

func (v *Verifier) verifyJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrapf(ErrUnauthorized, "failed to parse token: %v", err)
	}
	if !token.Valid {
		return nil, errors.Wrap(ErrUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(ErrUnauthorized, "invalid token claims")
	}
	return extractClaims(*claims)
}

// extractClaims reads "sub" and either a "scope" string (space separated) or
// a "scopes" array.
func extractClaims(claims jwt.MapClaims) (*Claims, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.Wrap(ErrUnauthorized, "missing or invalid 'sub' claim")
	}

	var scopes []string
	if scope, ok := claims["scope"].(string); ok {
		scopes = append(scopes, strings.Fields(scope)...)
	}
	if list, ok := claims["scopes"].([]interface{}); ok {
		for _, s := range list {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
	}

	return &Claims{Subject: sub, Scopes: scopes}, nil
}

// Sign issues an HS256 token for subject with scopes, valid for ttl. A zero
// ttl issues a token without expiry.
func (v *Verifier) Sign(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    subject,
		"scopes": scopes,
		"iat":    now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return token, nil
}
