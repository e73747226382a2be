package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/smarthome_router/internal/services/telemetry"
)

// Service is the name the router registers with the gRPC health server,
// next to the overall "" entry.
const Service = "smarthome.router"

// ErrorAger reports how long ago a dependency last failed.
type ErrorAger interface {
	LastErrorAge() time.Duration
}

// Monitor mirrors broker connectivity into a gRPC health server and the
// /healthz and /readyz endpoints.
type Monitor struct {
	grpc      *health.Server
	connected atomic.Bool
	writer    ErrorAger
	grace     time.Duration
}

// NewMonitor starts NOT_SERVING. writer may be nil when the historian is off.
func NewMonitor(writer ErrorAger, grace time.Duration) *Monitor {
	m := &Monitor{grpc: health.NewServer(), writer: writer, grace: grace}
	m.set(false)
	return m
}

// Attach follows connect and disconnect events.
func (m *Monitor) Attach(r *telemetry.Registry) error {
	if err := r.Subscribe(telemetry.EventConnect, func(interface{}) error { m.set(true); return nil }); err != nil {
		return err
	}
	return r.Subscribe(telemetry.EventDisconnect, func(interface{}) error { m.set(false); return nil })
}

func (m *Monitor) set(up bool) {
	m.connected.Store(up)
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		st = healthpb.HealthCheckResponse_SERVING
	}
	m.grpc.SetServingStatus("", st)
	m.grpc.SetServingStatus(Service, st)
}

// GRPC is registered on the gRPC server by the caller.
func (m *Monitor) GRPC() *health.Server { return m.grpc }

// Shutdown marks everything NOT_SERVING for good.
func (m *Monitor) Shutdown() { m.grpc.Shutdown() }

func (m *Monitor) writerOK() bool {
	return m.writer == nil || m.writer.LastErrorAge() > m.grace
}

type status struct {
	Status          string   `json:"status"`
	MQTTConnected   bool     `json:"mqtt_connected"`
	HistorianOK     bool     `json:"historian_ok"`
	LastWriteErrorS *float64 `json:"last_write_error_age_sec,omitempty"`
}

func (m *Monitor) status() status {
	st := status{MQTTConnected: m.connected.Load(), HistorianOK: m.writerOK()}
	if m.writer != nil {
		age := m.writer.LastErrorAge().Seconds()
		st.LastWriteErrorS = &age
	}
	switch {
	case st.MQTTConnected && st.HistorianOK:
		st.Status = "ok"
	case st.MQTTConnected || st.HistorianOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

// HealthHandler always answers 200 with the current status.
func (m *Monitor) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.status())
	})
}

// ReadyHandler answers 200 only when connected and the historian is healthy.
func (m *Monitor) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ready := m.connected.Load() && m.writerOK()
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(struct {
			Ready bool `json:"ready"`
		}{ready})
	})
}
