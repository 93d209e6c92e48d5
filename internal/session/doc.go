// Package session implements the session registry of the control relay.
//
// Every accepted connection is a Session with a role. The Registry owns the
// single driver slot and the dashboard set; every role change goes through
// it under one mutex, so at most one session is ever the driver.
//
// Architecture References:
//   - Roles: spectator (initial), driver, dashboard (terminal)
//   - Transitions: acquire, release, subscribe
package session
