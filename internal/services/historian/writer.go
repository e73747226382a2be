package historian

import (
	"log/slog"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
	"github.com/LeonardoBeccarini/smarthome_router/internal/services/telemetry"
)

// PointWriter is the part of the Influx non-blocking write API we use.
// api.WriteAPI satisfies it.
type PointWriter interface {
	WritePoint(point *write.Point)
	Errors() <-chan error
	Flush()
}

// Writer stores readings and remembers when the last async write failed,
// for the readiness check.
type Writer struct {
	api    PointWriter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	lastErr time.Time
}

func NewWriter(w PointWriter, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	ww := &Writer{
		api:     w,
		logger:  logger,
		now:     time.Now,
		lastErr: time.Now().Add(-24 * time.Hour),
	}
	go ww.watchErrors(w.Errors())
	return ww
}

func (w *Writer) watchErrors(errs <-chan error) {
	for err := range errs {
		if err == nil {
			continue
		}
		w.mu.Lock()
		w.lastErr = w.now()
		w.mu.Unlock()
		w.logger.Warn("influx write failed", "err", err)
	}
}

// Attach makes the writer an observer of sensorData.
func (w *Writer) Attach(r *telemetry.Registry) error {
	return r.OnSensorData(w.Write)
}

// Write queues one reading; it never blocks on the network.
func (w *Writer) Write(r model.SensorReading) error {
	w.api.WritePoint(ReadingToPoint(r))
	return nil
}

// LastErrorAge is the time since the last failed write. A nil writer
// reports a very old error so it never blocks readiness.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return w.now().Sub(t)
}

func (w *Writer) Flush() { w.api.Flush() }
