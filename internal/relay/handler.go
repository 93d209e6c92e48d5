package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/yannnico/rc-car-project/internal/codec"
	"github.com/yannnico/rc-car-project/internal/command"
	"github.com/yannnico/rc-car-project/internal/metrics"
	"github.com/yannnico/rc-car-project/internal/session"
)

// Config tunes websocket transport.
type Config struct {
	ReadLimit    int64
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	QueueSize    int
}

// DefaultConfig matches the relay's shipped defaults.
var DefaultConfig = Config{
	ReadLimit:    1 << 16,
	PingInterval: 20 * time.Second,
	PongWait:     30 * time.Second,
	WriteWait:    5 * time.Second,
	QueueSize:    session.DefaultQueueSize,
}

// Handler upgrades HTTP requests to relay websocket sessions.
type Handler struct {
	orchestrator *command.Orchestrator
	config       Config
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewHandler creates a websocket handler.
func NewHandler(orchestrator *command.Orchestrator, config Config) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		config:       config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Operator consoles are served from arbitrary origins, including file://.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP runs one connection until it ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("remote", r.RemoteAddr).WithField("err", err).Warn("websocket upgrade failed")
		return
	}
	if !h.track(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	defer h.untrack(conn)

	ctx := r.Context()
	s := session.New(r.RemoteAddr, h.config.QueueSize)

	role, err := h.orchestrator.Connect(ctx, s)
	if err != nil {
		log.WithField("remote", r.RemoteAddr).WithField("err", err).Error("session registration failed")
		conn.Close()
		return
	}
	defer func() {
		h.orchestrator.Disconnect(context.WithoutCancel(ctx), s)
		conn.Close()
	}()

	if err := h.reply(s, codec.HelloReply(string(role))); err != nil {
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, s)
	}()

	h.readPump(ctx, conn, s)

	s.Close()
	<-writerDone
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, s *session.Session) {
	conn.SetReadLimit(h.config.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			entry := log.WithField("session", s.ID).WithField("err", err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				entry.Info("connection lost")
			} else {
				entry.Debug("connection closed")
			}
			return
		}
		// Any traffic counts as liveness.
		_ = conn.SetReadDeadline(time.Now().Add(h.config.PongWait))

		msg, err := codec.Decode(data)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, codec.ErrUnknownMessage) {
				reason = "unknown"
			}
			metrics.FramesDropped.WithLabelValues(reason).Inc()
			log.WithField("session", s.ID).WithField("err", err).Debug("message dropped")
			continue
		}

		reply, err := h.orchestrator.Dispatch(ctx, s, msg)
		if err != nil {
			log.WithField("session", s.ID).WithField("err", err).Debug("message not applied")
		}
		if reply == nil {
			continue
		}
		if err := h.reply(s, *reply); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, s *session.Session) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.WithField("session", s.ID).WithField("err", err).Debug("write failed")
				s.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteWait))
			return
		}
	}
}

// reply queues a control-plane message for s.
func (h *Handler) reply(s *session.Session, r codec.Reply) error {
	payload, err := codec.Encode(r)
	if err != nil {
		return errors.Wrap(err, "failed to encode reply")
	}
	if err := s.Enqueue(payload, h.config.WriteWait); err != nil {
		log.WithField("session", s.ID).WithField("err", err).Debug("reply not queued")
		return err
	}
	return nil
}

func (h *Handler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.wg.Done()
}

// Close refuses new connections, closes open ones and waits until their
// cleanup has run or ctx expires.
func (h *Handler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "websocket sessions did not drain")
	}
}
