// Package actuator implements the datagram link to the vehicle firmware for
// the control relay.
//
// A Link emits one fire-and-forget datagram per command frame. It never
// waits for a response and never retries; send failures are returned as
// normalized errors for the caller to log.
//
// Architecture References:
//   - Actuator datagram: JSON object with exactly ch1..ch8
//   - Error codes: UNAVAILABLE, INTERNAL
package actuator
