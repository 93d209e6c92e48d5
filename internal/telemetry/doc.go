// Package telemetry implements the telemetry fanout for the control relay.
//
// Every forwarded driver frame is projected once into a human-readable
// Record and delivered to all dashboards through their outbound queues, in
// publish order. A dashboard that cannot accept a record within the send
// timeout is evicted and closed. Records are optionally mirrored to an MQTT
// broker.
//
// Architecture References:
//   - Record: steering, throttle, winch, lights, gear, dig, swaybar, ts
package telemetry
