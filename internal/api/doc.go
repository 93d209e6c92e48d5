// Package api implements the HTTP surface of the control relay.
//
// Routes:
//   - GET /ws: websocket control plane
//   - GET /api/v1/health: liveness, no auth
//   - GET /api/v1/status: relay state, bearer token with the read scope
//   - GET /metrics: Prometheus exposition
//
// JSON responses use the {result, data, code, message, correlationId}
// envelope.
package api
