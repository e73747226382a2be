package model

// Climate comes from the DHT temperature/humidity sensors.
type Climate struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

func (Climate) Kind() string { return "climate" }
func (c Climate) Fields() map[string]interface{} {
	return map[string]interface{}{"temperature": c.Temperature, "humidity": c.Humidity}
}

// Motion comes from the PIR sensors.
type Motion struct {
	Detected bool `json:"detected"`
}

func (Motion) Kind() string { return "motion" }
func (m Motion) Fields() map[string]interface{} {
	return map[string]interface{}{"detected": m.Detected}
}

// Contact is a door sensor state.
type Contact struct {
	Open bool `json:"open"`
}

func (Contact) Kind() string { return "door" }
func (c Contact) Fields() map[string]interface{} {
	return map[string]interface{}{"open": c.Open}
}

// Distance comes from the ultrasonic sensors. Alert is raised by the node
// when an object is closer than its configured threshold.
type Distance struct {
	Centimeters float64 `json:"distance"`
	Alert       bool    `json:"alert"`
}

func (Distance) Kind() string { return "distance" }
func (d Distance) Fields() map[string]interface{} {
	return map[string]interface{}{"distance": d.Centimeters, "alert": d.Alert}
}

// Switch is any binary actuator (door light, buzzer).
type Switch struct {
	On bool `json:"on"`
}

func (Switch) Kind() string { return "switch" }
func (s Switch) Fields() map[string]interface{} {
	return map[string]interface{}{"on": s.On}
}

// Color is the RGB light state with 0-255 channels.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (Color) Kind() string { return "color" }
func (c Color) Fields() map[string]interface{} {
	return map[string]interface{}{"r": int64(c.R), "g": int64(c.G), "b": int64(c.B)}
}

// Orientation is a gyroscope/accelerometer reading.
type Orientation struct {
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Z           float64  `json:"z"`
	Delta       *float64 `json:"delta,omitempty"`
	Significant bool     `json:"significant"`
}

func (Orientation) Kind() string { return "orientation" }
func (o Orientation) Fields() map[string]interface{} {
	f := map[string]interface{}{"x": o.X, "y": o.Y, "z": o.Z, "significant": o.Significant}
	if o.Delta != nil {
		f["delta"] = *o.Delta
	}
	return f
}

// CountdownAction is what a countdown-timer display was told to do.
type CountdownAction string

const (
	ActionShowTime   CountdownAction = "show_time"
	ActionBlinkStart CountdownAction = "blink_start"
	ActionBlinkStop  CountdownAction = "blink_stop"
)

// Countdown is a command-like signal from the kitchen timer display, not a
// scalar reading.
type Countdown struct {
	Action  CountdownAction `json:"action"`
	Display string          `json:"display,omitempty"`
}

func (Countdown) Kind() string { return "countdown" }
func (c Countdown) Fields() map[string]interface{} {
	return map[string]interface{}{"action": string(c.Action), "display": c.Display}
}

// Button is a push button press.
type Button struct {
	Pressed bool `json:"pressed"`
}

func (Button) Kind() string { return "button" }
func (b Button) Fields() map[string]interface{} {
	return map[string]interface{}{"pressed": b.Pressed}
}

// IRCode is a code received by the infrared receiver.
type IRCode struct {
	Code string `json:"code"`
}

func (IRCode) Kind() string { return "ir" }
func (i IRCode) Fields() map[string]interface{} {
	return map[string]interface{}{"code": i.Code}
}
