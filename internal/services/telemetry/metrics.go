package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the router's Prometheus collectors. A nil Registerer
// builds unregistered collectors, which is what tests use.
type Metrics struct {
	Messages         *prometheus.CounterVec
	Dropped          *prometheus.CounterVec
	Readings         *prometheus.CounterVec
	ListenerFailures *prometheus.CounterVec
	DevicesOnline    prometheus.Gauge
	Commands         *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smarthome",
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Inbound messages by topic class.",
		}, []string{"topic"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smarthome",
			Subsystem: "router",
			Name:      "dropped_total",
			Help:      "Messages or items dropped, by reason.",
		}, []string{"reason"}),
		Readings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smarthome",
			Subsystem: "router",
			Name:      "readings_total",
			Help:      "Sensor readings delivered to observers, by kind.",
		}, []string{"kind"}),
		ListenerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smarthome",
			Subsystem: "router",
			Name:      "listener_failures_total",
			Help:      "Observer invocations that returned an error or panicked.",
		}, []string{"event"}),
		DevicesOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "smarthome",
			Subsystem: "router",
			Name:      "devices_online",
			Help:      "Devices seen within the liveness threshold at the last tick.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smarthome",
			Subsystem: "router",
			Name:      "commands_total",
			Help:      "Outbound commands by result.",
		}, []string{"result"}),
	}
}

const (
	dropDecode       = "decode"
	dropBadPayload   = "bad_payload"
	dropMissingField = "missing_field"
	dropUnknownKind  = "unknown_kind"
	dropUnknownTopic = "unknown_topic"
)
