package command

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/yannnico/rc-car-project/internal/actuator"
	"github.com/yannnico/rc-car-project/internal/audit"
	"github.com/yannnico/rc-car-project/internal/auth"
	"github.com/yannnico/rc-car-project/internal/codec"
	"github.com/yannnico/rc-car-project/internal/metrics"
	"github.com/yannnico/rc-car-project/internal/session"
	"github.com/yannnico/rc-car-project/internal/telemetry"
)

// Options tunes orchestrator behaviour.
type Options struct {
	// AutoDriver grants the slot on Connect when it is free.
	AutoDriver bool
}

// Orchestrator applies decoded messages on behalf of sessions.
type Orchestrator struct {
	registry  *session.Registry
	link      actuator.Link
	watchdog  Watchdog
	telemetry TelemetryPublisher
	verifier  *auth.Verifier
	options   Options

	auditLogger AuditLogger
	now         func() time.Time
}

// NewOrchestrator wires the relay components together.
func NewOrchestrator(registry *session.Registry, link actuator.Link, wd Watchdog, hub TelemetryPublisher, verifier *auth.Verifier, options Options) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		link:      link,
		watchdog:  wd,
		telemetry: hub,
		verifier:  verifier,
		options:   options,
		now:       time.Now,
	}
}

// SetAuditLogger sets the audit logger for role changes.
func (o *Orchestrator) SetAuditLogger(logger AuditLogger) {
	o.auditLogger = logger
}

// Connect registers a new session and returns the role it starts with.
func (o *Orchestrator) Connect(ctx context.Context, s *session.Session) (session.Role, error) {
	if err := o.registry.Register(s); err != nil {
		return "", err
	}

	if o.options.AutoDriver {
		if err := o.registry.TryAcquireDriver(s); err == nil {
			metrics.AcquireAttempts.WithLabelValues("granted").Inc()
			o.logAudit(ctx, "acquire", s, audit.OutcomeSuccess, map[string]interface{}{"auto": true})
		}
	}

	role := s.Role()
	log.WithFields(log.Fields{
		"session": s.ID,
		"remote":  s.Remote,
		"role":    role,
	}).Info("session connected")
	return role, nil
}

// Disconnect removes s, freeing the driver slot if it held it.
func (o *Orchestrator) Disconnect(ctx context.Context, s *session.Session) {
	role := s.Role()
	wasDriver := o.registry.Unregister(s)
	s.Close()

	entry := log.WithFields(log.Fields{
		"session": s.ID,
		"remote":  s.Remote,
		"role":    role,
	})
	if wasDriver {
		entry.Info("driver disconnected, slot released")
		o.logAudit(ctx, "disconnect", s, audit.OutcomeSuccess, map[string]interface{}{"role": string(role)})
		return
	}
	entry.Info("session disconnected")
}

// Dispatch verifies and applies msg for s. A non-nil reply is sent back to
// the session; a non-nil error means the message was dropped.
func (o *Orchestrator) Dispatch(ctx context.Context, s *session.Session, msg codec.Message) (*codec.Reply, error) {
	claims, err := o.verifier.Authorize(msg.AuthToken(), scopeFor(msg))
	if err != nil {
		metrics.FramesDropped.WithLabelValues("auth").Inc()
		return nil, err
	}
	if s.Subject() == "" {
		s.SetSubject(claims.Subject)
	}
	ctx = audit.WithUser(ctx, claims.Subject)

	switch m := msg.(type) {
	case codec.Control:
		err := o.Forward(ctx, s, m.Frame)
		if errors.Is(err, ErrNotDriver) {
			return nil, err
		}
		if m.Legacy {
			metrics.LegacyFrames.Inc()
		}
		log.WithFields(log.Fields{
			"session":  s.ID,
			"legacy":   m.Legacy,
			"clientTs": m.TS,
		}).Debug("driver frame")
		return nil, err

	case codec.Acquire:
		err := o.Acquire(ctx, s)
		if errors.Is(err, session.ErrBusy) {
			reply := codec.BusyReply()
			return &reply, nil
		}
		if err != nil {
			return nil, err
		}
		reply := codec.RoleGrant(string(session.RoleDriver))
		return &reply, nil

	case codec.Release:
		if !o.Release(ctx, s) {
			metrics.FramesDropped.WithLabelValues("role").Inc()
			return nil, ErrNotDriver
		}
		reply := codec.RoleGrant(string(session.RoleSpectator))
		return &reply, nil

	case codec.Hello:
		if m.Role != string(session.RoleDashboard) {
			metrics.FramesDropped.WithLabelValues("role").Inc()
			return nil, errors.Wrapf(ErrUnsupportedRole, "role %q", m.Role)
		}
		if err := o.Subscribe(ctx, s); err != nil {
			return nil, err
		}
		reply := codec.RoleGrant(string(session.RoleDashboard))
		return &reply, nil
	}

	metrics.FramesDropped.WithLabelValues("unknown").Inc()
	return nil, codec.ErrUnknownMessage
}

// Forward sends frame to the actuator if s is the driver, refreshes the
// watchdog and publishes telemetry. Link failures are logged and returned;
// they never end the session.
func (o *Orchestrator) Forward(ctx context.Context, s *session.Session, frame codec.Frame) error {
	if !o.registry.IsDriver(s) {
		metrics.FramesDropped.WithLabelValues("not_driver").Inc()
		return ErrNotDriver
	}

	err := o.link.Send(ctx, frame)
	o.watchdog.Touch()
	o.telemetry.Publish(frame, o.now())

	if err != nil {
		code := "UNKNOWN"
		if c := actuator.Code(err); c != nil {
			code = c.Error()
		}
		metrics.ActuatorErrors.WithLabelValues(code).Inc()
		log.WithField("session", s.ID).WithField("err", err).Warn("actuator send failed")
		return err
	}

	metrics.FramesForwarded.Inc()
	return nil
}

// Acquire requests the driver slot for s.
func (o *Orchestrator) Acquire(ctx context.Context, s *session.Session) error {
	err := o.registry.TryAcquireDriver(s)
	switch {
	case err == nil:
		metrics.AcquireAttempts.WithLabelValues("granted").Inc()
		o.logAudit(ctx, "acquire", s, audit.OutcomeSuccess, nil)
		log.WithField("session", s.ID).WithField("subject", s.Subject()).Info("driver slot granted")
	case errors.Is(err, session.ErrBusy):
		metrics.AcquireAttempts.WithLabelValues("busy").Inc()
		o.logAudit(ctx, "acquire", s, audit.OutcomeDenied, map[string]interface{}{"code": "BUSY"})
	default:
		metrics.AcquireAttempts.WithLabelValues("rejected").Inc()
		log.WithField("session", s.ID).WithField("err", err).Debug("acquire rejected")
	}
	return err
}

// Release gives up the driver slot if s holds it.
func (o *Orchestrator) Release(ctx context.Context, s *session.Session) bool {
	if !o.registry.Release(s) {
		return false
	}
	o.logAudit(ctx, "release", s, audit.OutcomeSuccess, nil)
	log.WithField("session", s.ID).Info("driver slot released")
	return true
}

// Subscribe turns s into a telemetry dashboard.
func (o *Orchestrator) Subscribe(ctx context.Context, s *session.Session) error {
	if err := o.registry.RegisterDashboard(s); err != nil {
		metrics.FramesDropped.WithLabelValues("role").Inc()
		return err
	}
	o.logAudit(ctx, "dashboard", s, audit.OutcomeSuccess, nil)
	log.WithField("session", s.ID).Info("dashboard subscribed")
	return nil
}

// Status is the relay state reported by the status API.
type Status struct {
	Actuator           string            `json:"actuator"`
	Failsafe           bool              `json:"failsafe"`
	MsSinceLastForward *int64            `json:"msSinceLastForward"`
	Sessions           session.Snapshot  `json:"sessions"`
	LastTelemetry      *telemetry.Record `json:"lastTelemetry"`
}

// Status returns a point-in-time view of the relay.
func (o *Orchestrator) Status(ctx context.Context) Status {
	status := Status{
		Actuator: o.link.Addr(),
		Failsafe: o.watchdog.Tripped(),
		Sessions: o.registry.Snapshot(),
	}
	if elapsed, ok := o.watchdog.SinceLastForward(); ok {
		ms := elapsed.Milliseconds()
		status.MsSinceLastForward = &ms
	}
	if rec, ok := o.telemetry.Last(); ok {
		status.LastTelemetry = &rec
	}
	return status
}

func (o *Orchestrator) logAudit(ctx context.Context, action string, s *session.Session, outcome string, params map[string]interface{}) {
	if o.auditLogger == nil {
		return
	}
	o.auditLogger.LogAction(ctx, action, s.ID, outcome, params)
}

// scopeFor maps a message kind to the scope its token must carry.
func scopeFor(msg codec.Message) string {
	if _, ok := msg.(codec.Hello); ok {
		return auth.ScopeTelemetry
	}
	return auth.ScopeControl
}
