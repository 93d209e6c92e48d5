// Package command implements the command orchestrator for the control relay.
//
// The orchestrator is the single place where a decoded message becomes an
// effect. It checks the token first, then routes control frames from the
// driver to the actuator link, refreshes the failsafe watchdog, publishes
// telemetry and performs role changes through the session registry.
//
// Architecture References:
//   - Token check precedes every message kind, dashboard hello included
//   - Only the current driver's frames reach the actuator
package command
