package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yannnico/rc-car-project/internal/auth"
	"github.com/yannnico/rc-car-project/internal/command"
	"github.com/yannnico/rc-car-project/internal/session"
)

type stubStatus struct {
	status command.Status
}

func (s *stubStatus) Status(ctx context.Context) command.Status {
	return s.status
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	verifier, err := auth.NewVerifier(auth.VerifierConfig{Secret: "T"})
	require.NoError(t, err)

	ms := int64(12)
	status := &stubStatus{status: command.Status{
		Actuator:           "192.168.1.84:5005",
		Failsafe:           true,
		MsSinceLastForward: &ms,
		Sessions:           session.Snapshot{DriverID: "abc", Drivers: 1, Sessions: []session.Info{}},
	}}
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return NewServer(status, ws, auth.NewMiddleware(verifier))
}

func do(t *testing.T, s *Server, method, path, token string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, resp := do(t, s, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Result)
	assert.NotEmpty(t, resp.CorrelationID)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, Version, data["version"])
}

func TestStatusRequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec, resp := do(t, s, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", resp.Result)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/status", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	rec, resp := do(t, s, http.MethodGet, "/api/v1/status", "T")
	require.Equal(t, http.StatusOK, rec.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "192.168.1.84:5005", data["actuator"])
	assert.Equal(t, true, data["failsafe"])
	assert.Equal(t, 12.0, data["msSinceLastForward"])
	assert.Nil(t, data["lastTelemetry"])
	sessions := data["sessions"].(map[string]interface{})
	assert.Equal(t, "abc", sessions["driverId"])
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)

	rec, _ := do(t, s, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_frames_forwarded_total")

	rec, resp := do(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)

	rec, resp = do(t, s, http.MethodPost, "/api/v1/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", resp.Code)
}

func TestServeAndStop(t *testing.T) {
	s := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/api/v1/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.NoError(t, <-served)
}
