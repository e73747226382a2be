package dashboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
	"github.com/LeonardoBeccarini/smarthome_router/internal/services/telemetry"
)

// Commander is the outbound half of the router.
type Commander interface {
	PublishCommand(target, command string, params map[string]interface{}) error
	Status() model.ConnectionStatus
}

// LivenessSource lists known devices.
type LivenessSource interface {
	Snapshot(now time.Time) []model.DeviceLiveness
}

type deviceView struct {
	model.DeviceLiveness
	Readings []model.SensorReading `json:"readings"`
}

type commandRequest struct {
	Target  string                 `json:"target"`
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params"`
}

const maxCommandBody = 64 << 10

// NewHTTPMux serves the status cache and the command endpoint.
func NewHTTPMux(cache *Cache, cmd Commander, live LivenessSource, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		st := cache.Status()
		st.Connected = cmd.Status() == model.Connected
		writeJSON(w, http.StatusOK, st)
	})

	// GET /api/devices: liveness snapshot plus the latest reading of every sensor
	mux.HandleFunc("GET /api/devices", func(w http.ResponseWriter, _ *http.Request) {
		snap := live.Snapshot(time.Now())
		out := make([]deviceView, 0, len(snap))
		for _, d := range snap {
			out = append(out, deviceView{DeviceLiveness: d, Readings: cache.Readings(d.Device)})
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("POST /api/commands", func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		err := cmd.PublishCommand(req.Target, req.Command, req.Params)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
		case errors.Is(err, telemetry.ErrInvalidCommand):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, telemetry.ErrNotConnected):
			writeError(w, http.StatusServiceUnavailable, "broker not connected")
		default:
			logger.Warn("command failed", "target", req.Target, "command", req.Command, "err", err)
			writeError(w, http.StatusBadGateway, "publish failed")
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
