// Package codec implements the wire vocabulary of the control relay.
//
// Inbound websocket messages are decoded into a small set of tagged variants
// (Control, Acquire, Release, Hello). Control messages are normalized into a
// complete eight channel Frame: values are coerced to numbers, clamped to
// [-1, 1] and missing channels default to zero. The same Frame serializes to
// the datagram the actuator firmware expects.
//
// Protocol References:
//   - Inbound: {ch1..ch8, token, ts}, legacy {ax, ay, token, ts},
//     {acquire: true, token}, {release: true, token},
//     {type: "hello", role: "dashboard", token}
//   - Outbound: {type: "hello"|"role"|"busy", role, by}
package codec
