package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireScope(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Mode: ModeJWT, Secret: "jwt-secret"})
	require.NoError(t, err)

	reader, err := v.Sign("viewer", []string{ScopeRead}, 0)
	require.NoError(t, err)
	driver, err := v.Sign("driver", []string{ScopeControl}, 0)
	require.NoError(t, err)

	var seen *Claims
	handler := NewMiddleware(v).RequireScope(ScopeRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"missing scope", "Bearer " + driver, http.StatusForbidden},
		{"ok", "Bearer " + reader, http.StatusOK},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
			if test.header != "" {
				req.Header.Set("Authorization", test.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, test.want, rec.Code)
			if test.want != http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"result":"error"`)
			}
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "viewer", seen.Subject)
}

func TestClaimsFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, ClaimsFromContext(req.Context()))
}
