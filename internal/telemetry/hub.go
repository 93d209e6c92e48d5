package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/yannnico/rc-car-project/internal/codec"
	"github.com/yannnico/rc-car-project/internal/metrics"
	"github.com/yannnico/rc-car-project/internal/session"
)

// Defaults.
const (
	DefaultSendTimeout = 100 * time.Millisecond
	DefaultBacklog     = 256
)

// Dashboards is the subset of the session registry the hub needs.
type Dashboards interface {
	Dashboards() []*session.Session
	RemoveDashboard(s *session.Session) bool
}

// Sink receives every record in addition to the dashboards.
type Sink interface {
	Name() string
	Publish(ctx context.Context, rec Record) error
}

// Config tunes delivery.
type Config struct {
	SendTimeout time.Duration
	Backlog     int
}

// Hub fans records out to dashboards. Publish never blocks; delivery runs on
// the goroutine started by Run.
type Hub struct {
	dashboards Dashboards
	config     Config
	in         chan Record

	mu    sync.RWMutex
	last  *Record
	sinks []Sink
}

// NewHub creates a hub over the dashboard set.
func NewHub(dashboards Dashboards, config Config) *Hub {
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.Backlog <= 0 {
		config.Backlog = DefaultBacklog
	}
	return &Hub{
		dashboards: dashboards,
		config:     config,
		in:         make(chan Record, config.Backlog),
	}
}

// AddSink registers an additional record consumer.
func (h *Hub) AddSink(sink Sink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish projects frame and queues the record for delivery.
func (h *Hub) Publish(frame codec.Frame, ts time.Time) {
	rec := Project(frame, ts)

	h.mu.Lock()
	h.last = &rec
	h.mu.Unlock()

	select {
	case h.in <- rec:
	default:
		metrics.TelemetryDropped.WithLabelValues("hub").Inc()
		log.Debug("telemetry backlog full, record dropped")
	}
}

// Last returns the most recent record, if any.
func (h *Hub) Last() (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return Record{}, false
	}
	return *h.last, true
}

// Run delivers queued records until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-h.in:
			h.deliver(ctx, rec)
		}
	}
}

func (h *Hub) deliver(ctx context.Context, rec Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.WithField("err", err).Error("failed to encode telemetry record")
		return
	}

	// Ready dashboards are served without waiting. Full queues then get
	// one concurrent SendTimeout window, so a slow dashboard never delays
	// the others by more than one timeout per record.
	var pending []*session.Session
	for _, s := range h.dashboards.Dashboards() {
		err := s.Enqueue(payload, 0)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrSendTimeout):
			pending = append(pending, s)
		default:
			h.evict(s, err)
		}
	}

	var wg sync.WaitGroup
	for _, s := range pending {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			if err := s.Enqueue(payload, h.config.SendTimeout); err != nil {
				h.evict(s, err)
			}
		}(s)
	}
	wg.Wait()

	h.mu.RLock()
	sinks := h.sinks
	h.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Publish(ctx, rec); err != nil {
			metrics.TelemetryDropped.WithLabelValues(sink.Name()).Inc()
			log.WithField("sink", sink.Name()).WithField("err", err).Debug("telemetry sink rejected record")
		}
	}
}

// evict drops a dashboard that failed delivery and closes its connection.
func (h *Hub) evict(s *session.Session, cause error) {
	if !h.dashboards.RemoveDashboard(s) {
		return
	}
	s.Close()
	metrics.DashboardEvictions.Inc()

	reason := "send timeout"
	if errors.Is(cause, session.ErrClosed) {
		reason = "closed"
	}
	log.WithFields(log.Fields{
		"session": s.ID,
		"remote":  s.Remote,
		"reason":  reason,
	}).Warn("dashboard evicted")
}
