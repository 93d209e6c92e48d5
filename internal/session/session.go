package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Role is the authority a session holds.
type Role string

// Roles.
const (
	RoleSpectator Role = "spectator"
	RoleDriver    Role = "driver"
	RoleDashboard Role = "dashboard"
)

// Role transition events.
const (
	EventAcquire   = "acquire"
	EventRelease   = "release"
	EventSubscribe = "subscribe"
)

// DefaultQueueSize is the outbound queue depth of a session.
const DefaultQueueSize = 64

// Session is one accepted control-plane connection.
type Session struct {
	ID          string
	Remote      string
	ConnectedAt time.Time

	// role is only fired while the owning Registry holds its lock.
	role *fsm.FSM

	mu      sync.RWMutex
	subject string

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a spectator session with a fresh ID.
func New(remote string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Session{
		ID:          uuid.NewString(),
		Remote:      remote,
		ConnectedAt: time.Now(),
		role:        newRoleMachine(),
		out:         make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
}

func newRoleMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(RoleSpectator),
		fsm.Events{
			{Name: EventAcquire, Src: []string{string(RoleSpectator)}, Dst: string(RoleDriver)},
			{Name: EventRelease, Src: []string{string(RoleDriver)}, Dst: string(RoleSpectator)},
			{Name: EventSubscribe, Src: []string{string(RoleSpectator)}, Dst: string(RoleDashboard)},
		},
		fsm.Callbacks{},
	)
}

// Role returns the current role.
func (s *Session) Role() Role {
	return Role(s.role.Current())
}

func (s *Session) fire(event string) error {
	return s.role.Event(context.Background(), event)
}

// Subject returns the authenticated operator name, if any.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// SetSubject records the operator name taken from a verified token.
func (s *Session) SetSubject(subject string) {
	s.mu.Lock()
	s.subject = subject
	s.mu.Unlock()
}

// Enqueue queues payload for the writer goroutine. It waits at most timeout
// for queue space; a non-positive timeout never waits.
func (s *Session) Enqueue(payload []byte, timeout time.Duration) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	if timeout <= 0 {
		select {
		case s.out <- payload:
			return nil
		case <-s.done:
			return ErrClosed
		default:
			return ErrSendTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.out <- payload:
		return nil
	case <-s.done:
		return ErrClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}

// Outbound is drained by the connection's writer goroutine.
func (s *Session) Outbound() <-chan []byte {
	return s.out
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session closed. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
