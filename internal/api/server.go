package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/yannnico/rc-car-project/internal/auth"
	"github.com/yannnico/rc-car-project/internal/metrics"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server is the relay's HTTP server.
type Server struct {
	httpServer     *http.Server
	router         *mux.Router
	status         StatusPort
	websocket      http.Handler
	authMiddleware *auth.Middleware
	startTime      time.Time
}

// NewServer builds the router. websocket serves /ws.
func NewServer(status StatusPort, websocket http.Handler, authMiddleware *auth.Middleware) *Server {
	s := &Server{
		status:         status,
		websocket:      websocket,
		authMiddleware: authMiddleware,
		startTime:      time.Now(),
	}
	s.router = s.routes()
	// No read/write timeouts: websocket connections are long-lived and manage
	// their own deadlines after the upgrade.
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws", s.websocket).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.Handle("/status", s.authMiddleware.RequireScope(auth.ScopeRead)(http.HandlerFunc(s.handleStatus))).Methods(http.MethodGet)

	// Subrouters answer mismatches themselves, so both need the envelopes.
	for _, router := range []*mux.Router{r, v1} {
		router.NotFoundHandler = http.HandlerFunc(handleNotFound)
		router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)
	}
	return r
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed")
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	log.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "HTTP server failed")
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shutdown HTTP server")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]interface{}{
		"status":  "ok",
		"uptimeS": int64(time.Since(s.startTime).Seconds()),
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.status.Status(r.Context()))
}
