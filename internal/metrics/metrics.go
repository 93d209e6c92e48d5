package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the relay's private registry. Go runtime and process
// collectors are registered alongside the relay metrics.
var Registry = prometheus.NewRegistry()

var (
	// FramesForwarded counts driver frames sent to the actuator.
	FramesForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_frames_forwarded_total",
			Help: "Total number of driver command frames forwarded to the actuator.",
		},
	)

	// FramesDropped counts inbound messages that were not applied.
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "Total number of inbound messages dropped without effect.",
		},
		[]string{"reason"}, // reason: malformed/unknown/auth/not_driver/role
	)

	// LegacyFrames counts driver frames that arrived in the two-axis shape.
	LegacyFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_legacy_frames_total",
			Help: "Total number of driver frames received in the legacy ax/ay shape.",
		},
	)

	// NeutralFrames counts neutral frames sent by the watchdog.
	NeutralFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_failsafe_neutral_frames_total",
			Help: "Total number of neutral frames asserted by the failsafe watchdog.",
		},
	)

	// FailsafeActive is 1 while the failsafe deadline is exceeded.
	FailsafeActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_failsafe_active",
			Help: "Failsafe state (1=neutral asserted, 0=driver input fresh).",
		},
	)

	// ActuatorErrors counts failed datagram sends by normalized code.
	ActuatorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_actuator_send_errors_total",
			Help: "Total number of actuator datagram send failures.",
		},
		[]string{"code"},
	)

	// AcquireAttempts counts driver slot requests by outcome.
	AcquireAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_acquire_total",
			Help: "Total number of driver acquire requests.",
		},
		[]string{"outcome"}, // outcome: granted/busy/rejected
	)

	// Sessions tracks connected sessions by role.
	Sessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_sessions",
			Help: "Number of connected sessions by role.",
		},
		[]string{"role"},
	)

	// DashboardEvictions counts dashboards dropped for slow or failed delivery.
	DashboardEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_dashboard_evictions_total",
			Help: "Total number of dashboards evicted after a failed telemetry send.",
		},
	)

	// TelemetryDropped counts records not delivered to a sink.
	TelemetryDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_telemetry_dropped_total",
			Help: "Total number of telemetry records dropped before delivery.",
		},
		[]string{"sink"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		FramesForwarded,
		FramesDropped,
		LegacyFrames,
		NeutralFrames,
		FailsafeActive,
		ActuatorErrors,
		AcquireAttempts,
		Sessions,
		DashboardEvictions,
		TelemetryDropped,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
