// Package metrics holds the Prometheus collectors exported by the relay on
// /metrics.
package metrics
