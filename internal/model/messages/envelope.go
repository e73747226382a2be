package messages

// Envelope is the batched form nodes publish on the sensors topic.
// Items are free-form objects; each carries at least "sensor" and "value"
// and may override "device".
type Envelope struct {
	Device string                   `json:"device"`
	Batch  bool                     `json:"batch"`
	Items  []map[string]interface{} `json:"items"`
}

// Item builds a single item in the shape nodes publish.
func Item(device, sensor string, value interface{}, simulated bool, ts float64) map[string]interface{} {
	return map[string]interface{}{
		"device":    device,
		"source":    "sensor",
		"sensor":    sensor,
		"value":     value,
		"simulated": simulated,
		"ts":        ts,
	}
}
