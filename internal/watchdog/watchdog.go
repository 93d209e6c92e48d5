package watchdog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/yannnico/rc-car-project/internal/actuator"
	"github.com/yannnico/rc-car-project/internal/audit"
	"github.com/yannnico/rc-car-project/internal/codec"
	"github.com/yannnico/rc-car-project/internal/metrics"
)

// Defaults.
const (
	DefaultTick     = 50 * time.Millisecond
	DefaultDeadline = 500 * time.Millisecond
)

// never marks a watchdog that has not seen a forward yet.
const never int64 = -1

// Config holds watchdog timing.
type Config struct {
	Tick     time.Duration
	Deadline time.Duration
}

// Validate checks that the tick is positive and shorter than the deadline.
func (c Config) Validate() error {
	if c.Tick <= 0 {
		return errors.Errorf("watchdog tick must be positive, got %v", c.Tick)
	}
	if c.Deadline <= c.Tick {
		return errors.Errorf("failsafe deadline %v must exceed watchdog tick %v", c.Deadline, c.Tick)
	}
	return nil
}

// AuditLogger receives failsafe edge transitions.
type AuditLogger interface {
	LogAction(ctx context.Context, action, sessionID, outcome string, params map[string]interface{})
}

// Watchdog converts stale driver input into neutral frames.
type Watchdog struct {
	link   actuator.Link
	config Config

	epoch time.Time
	now   func() time.Time

	// last is the forward time in nanoseconds since epoch, or never.
	last    atomic.Int64
	tripped atomic.Bool
	sendErr atomic.Bool

	auditLogger AuditLogger
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) {
		w.now = now
	}
}

// New creates a watchdog that is expired until the first Touch, so the
// actuator is held neutral from startup.
func New(link actuator.Link, config Config, opts ...Option) (*Watchdog, error) {
	if link == nil {
		return nil, errors.New("watchdog requires an actuator link")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	w := &Watchdog{
		link:   link,
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.epoch = w.now()
	w.last.Store(never)
	return w, nil
}

// SetAuditLogger sets the audit logger for failsafe transitions.
func (w *Watchdog) SetAuditLogger(logger AuditLogger) {
	w.auditLogger = logger
}

// Touch records that a driver frame was just forwarded.
func (w *Watchdog) Touch() {
	w.last.Store(int64(w.now().Sub(w.epoch)))
}

// Expired reports whether more than the deadline has passed since the last
// forward at time now.
func (w *Watchdog) Expired(now time.Time) bool {
	last := w.last.Load()
	if last == never {
		return true
	}
	return int64(now.Sub(w.epoch))-last > int64(w.config.Deadline)
}

// SinceLastForward returns the time elapsed since the last forward. ok is
// false when nothing has been forwarded yet.
func (w *Watchdog) SinceLastForward() (elapsed time.Duration, ok bool) {
	last := w.last.Load()
	if last == never {
		return 0, false
	}
	return w.now().Sub(w.epoch) - time.Duration(last), true
}

// Tripped reports whether the neutral frame is currently being asserted.
func (w *Watchdog) Tripped() bool {
	return w.tripped.Load()
}

// Run ticks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Tick)
	defer ticker.Stop()

	log.WithFields(log.Fields{
		"tick":     w.config.Tick,
		"deadline": w.config.Deadline,
		"actuator": w.link.Addr(),
	}).Info("failsafe watchdog started")

	for {
		select {
		case <-ctx.Done():
			log.Info("failsafe watchdog stopped")
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one tick. It returns true when the neutral frame was sent.
func (w *Watchdog) Check(ctx context.Context) bool {
	if !w.Expired(w.now()) {
		if w.tripped.Swap(false) {
			metrics.FailsafeActive.Set(0)
			log.Info("driver input resumed, failsafe released")
			w.audit(ctx, "failsafe_released", audit.OutcomeSuccess, nil)
		}
		return false
	}

	if !w.tripped.Swap(true) {
		metrics.FailsafeActive.Set(1)
		log.WithField("deadline", w.config.Deadline).Warn("no driver input within deadline, asserting neutral")
		w.audit(ctx, "failsafe_engaged", audit.OutcomeSuccess, nil)
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.config.Tick)
	defer cancel()
	return w.AssertNeutral(sendCtx) == nil
}

// AssertNeutral sends one neutral frame immediately.
func (w *Watchdog) AssertNeutral(ctx context.Context) error {
	err := w.link.Send(ctx, codec.Neutral)
	if err != nil {
		code := "UNKNOWN"
		if c := actuator.Code(err); c != nil {
			code = c.Error()
		}
		metrics.ActuatorErrors.WithLabelValues(code).Inc()

		// Repeated failures while the actuator is down would log every tick.
		entry := log.WithField("err", err)
		if w.sendErr.Swap(true) {
			entry.Debug("neutral frame send failed")
		} else {
			entry.Warn("neutral frame send failed")
			w.audit(ctx, "neutral_send_failed", audit.OutcomeError, map[string]interface{}{"code": code})
		}
		return err
	}

	if w.sendErr.Swap(false) {
		log.Info("neutral frame send recovered")
		w.audit(ctx, "neutral_send_recovered", audit.OutcomeSuccess, nil)
	}
	metrics.NeutralFrames.Inc()
	return nil
}

func (w *Watchdog) audit(ctx context.Context, action, outcome string, params map[string]interface{}) {
	if w.auditLogger == nil {
		return
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	params["deadlineMs"] = w.config.Deadline.Milliseconds()
	w.auditLogger.LogAction(ctx, action, "", outcome, params)
}
