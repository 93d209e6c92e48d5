package session

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yannnico/rc-car-project/internal/metrics"
)

// Info describes a session for the status API.
type Info struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Remote      string    `json:"remote"`
	Subject     string    `json:"subject,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Snapshot is a consistent view of the registry.
type Snapshot struct {
	DriverID   string `json:"driverId"`
	Spectators int    `json:"spectators"`
	Drivers    int    `json:"drivers"`
	Dashboards int    `json:"dashboards"`
	Sessions   []Info `json:"sessions"`
}

// Registry tracks live sessions, the driver slot and the dashboard set.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	driver     *Session
	dashboards map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		dashboards: make(map[string]*Session),
	}
}

// Register adds a new spectator session.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return errors.Errorf("session %s already registered", s.ID)
	}
	r.sessions[s.ID] = s
	r.updateGaugesLocked()
	return nil
}

// TryAcquireDriver gives s the driver slot. It returns ErrBusy while another
// session holds the slot and succeeds again for the current holder.
func (r *Registry) TryAcquireDriver(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; !exists {
		return ErrNotFound
	}
	if r.driver == s {
		return nil
	}
	if r.driver != nil {
		return ErrBusy
	}
	if err := s.fire(EventAcquire); err != nil {
		return errors.Wrapf(ErrInvalidTransition, "%s cannot acquire: %v", s.Role(), err)
	}

	r.driver = s
	r.updateGaugesLocked()
	return nil
}

// RegisterDashboard moves s into the dashboard set. Repeating it is a no-op;
// the current driver cannot become a dashboard.
func (r *Registry) RegisterDashboard(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; !exists {
		return ErrNotFound
	}
	if s.Role() == RoleDashboard {
		return nil
	}
	if err := s.fire(EventSubscribe); err != nil {
		return errors.Wrapf(ErrInvalidTransition, "%s cannot subscribe: %v", s.Role(), err)
	}

	r.dashboards[s.ID] = s
	r.updateGaugesLocked()
	return nil
}

// RemoveDashboard evicts s from the dashboard set and the registry. It
// reports whether s was a dashboard. The connection's own cleanup still
// calls Unregister, which is then a no-op.
func (r *Registry) RemoveDashboard(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dashboards[s.ID]; !ok {
		return false
	}
	delete(r.dashboards, s.ID)
	delete(r.sessions, s.ID)
	r.updateGaugesLocked()
	return true
}

// Release clears the driver slot if s holds it.
func (r *Registry) Release(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := r.releaseLocked(s)
	if released {
		r.updateGaugesLocked()
	}
	return released
}

// Unregister removes s entirely, releasing the slot and dashboard
// membership it holds. It reports whether s was the driver.
func (r *Registry) Unregister(s *Session) (wasDriver bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasDriver = r.releaseLocked(s)
	delete(r.dashboards, s.ID)
	delete(r.sessions, s.ID)
	r.updateGaugesLocked()
	return wasDriver
}

func (r *Registry) releaseLocked(s *Session) bool {
	if r.driver != s {
		return false
	}
	r.driver = nil
	// driver -> spectator is always defined
	_ = s.fire(EventRelease)
	return true
}

// Driver returns the current driver, or nil.
func (r *Registry) Driver() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.driver
}

// IsDriver reports whether s holds the driver slot.
func (r *Registry) IsDriver(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.driver == s
}

// Dashboards returns a copy of the dashboard set.
func (r *Registry) Dashboards() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.dashboards))
	for _, s := range r.dashboards {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns counts and per-session info ordered by connect time.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{Sessions: make([]Info, 0, len(r.sessions))}
	if r.driver != nil {
		snap.DriverID = r.driver.ID
		snap.Drivers = 1
	}
	snap.Dashboards = len(r.dashboards)
	snap.Spectators = len(r.sessions) - snap.Drivers - snap.Dashboards

	for _, s := range r.sessions {
		snap.Sessions = append(snap.Sessions, Info{
			ID:          s.ID,
			Role:        s.Role(),
			Remote:      s.Remote,
			Subject:     s.Subject(),
			ConnectedAt: s.ConnectedAt,
		})
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		return snap.Sessions[i].ConnectedAt.Before(snap.Sessions[j].ConnectedAt)
	})
	return snap
}

func (r *Registry) updateGaugesLocked() {
	drivers := 0
	if r.driver != nil {
		drivers = 1
	}
	metrics.Sessions.WithLabelValues(string(RoleDriver)).Set(float64(drivers))
	metrics.Sessions.WithLabelValues(string(RoleDashboard)).Set(float64(len(r.dashboards)))
	metrics.Sessions.WithLabelValues(string(RoleSpectator)).Set(float64(len(r.sessions) - drivers - len(r.dashboards)))
}
