package historian

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

// Measurement is the single measurement every reading is written to.
const Measurement = "iot"

// ReadingToPoint flattens a reading into a point tagged by device, sensor
// and kind. Fields come from the state; a state with none still gets a
// count so the point is writable.
func ReadingToPoint(r model.SensorReading) *write.Point {
	tags := map[string]string{
		"device": r.Device,
		"sensor": r.Sensor,
		"kind":   r.Kind,
	}
	fields := map[string]interface{}{}
	if r.State != nil {
		for k, v := range r.State.Fields() {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		fields["count"] = int64(1)
	}
	return influxdb2.NewPoint(Measurement, tags, fields, r.ReceivedAt)
}
