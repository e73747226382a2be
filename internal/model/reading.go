package model

import "time"

// State is the normalized, display-ready form of a single reading.
// Every sensor kind has its own concrete State type.
type State interface {
	// Kind names the family of the reading (climate, motion, door ...).
	Kind() string
	// Fields flattens the state into scalar fields, for sinks that store points.
	Fields() map[string]interface{}
}

// SensorReading is produced once per envelope item and handed to observers
// as-is. It is never retained by the router.
type SensorReading struct {
	Device     string      `json:"device"`
	Sensor     string      `json:"sensor"`
	Kind       string      `json:"kind"`
	Value      interface{} `json:"value,omitempty"`
	State      State       `json:"state"`
	ReceivedAt time.Time   `json:"received_at"`
}
