package telemetry

import (
	"errors"
	"testing"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

func TestReducer_ActiveEncodingsAgree(t *testing.T) {
	r := NewReducer()
	for _, code := range []string{"DPIR1", "DS2", "DL", "DB", "BTN"} {
		one, ok1, err1 := r.Reduce("PI1", code, Item{"value": float64(1)})
		tru, ok2, err2 := r.Reduce("PI1", code, Item{"value": true})
		if err1 != nil || err2 != nil || !ok1 || !ok2 {
			t.Fatalf("%s: unexpected result err=%v/%v ok=%v/%v", code, err1, err2, ok1, ok2)
		}
		if one.State != tru.State {
			t.Errorf("%s: 1 gave %+v, true gave %+v", code, one.State, tru.State)
		}
	}
}

func TestReducer_Decoders(t *testing.T) {
	tests := []struct {
		name   string
		sensor string
		item   Item
		want   model.State
	}{
		{"climate", "DHT2", Item{"value": map[string]interface{}{"temperature": 21.46, "humidity": 40.04}},
			model.Climate{Temperature: 21.5, Humidity: 40}},
		{"motion off", "DPIR3", Item{"value": false}, model.Motion{}},
		{"door open", "DS1", Item{"value": float64(1)}, model.Contact{Open: true}},
		{"distance", "DUS1", Item{"value": 12.34, "alert": true}, model.Distance{Centimeters: 12.3, Alert: true}},
		{"color", "BRGB", Item{"value": map[string]interface{}{"r": 1.0, "g": 0.5, "b": 0.0}},
			model.Color{R: 255, G: 128, B: 0}},
		{"color clamped", "BRGB", Item{"value": map[string]interface{}{"r": 2.0, "g": -1.0, "b": true}},
			model.Color{R: 255, G: 0, B: 255}},
		{"gyro", "GSG", Item{"value": 2.31, "ax": 0.14, "ay": -0.26, "az": 9.81, "delta": 2.31, "significant": true},
			model.Orientation{X: 0.1, Y: -0.3, Z: 9.8, Significant: true}},
		{"gyro fallback axes", "GSG", Item{"x": 1.0, "y": 2.0, "z": 3.0},
			model.Orientation{X: 1, Y: 2, Z: 3}},
		{"countdown", "4SD", Item{"action": "show_time", "display": "01:30"},
			model.Countdown{Action: model.ActionShowTime, Display: "01:30"}},
		{"countdown passthrough", "4SD", Item{"action": "reset"},
			model.Countdown{Action: "reset"}},
		{"gyro movement event", "GSG", Item{"value": true},
			model.Orientation{Significant: true}},
		{"gyro still event", "GSG", Item{"value": false},
			model.Orientation{}},
		{"countdown display state", "4SD", Item{"value": map[string]interface{}{"display": "0130", "seconds": 90.0, "blinking": false}},
			model.Countdown{Action: model.ActionShowTime, Display: "0130"}},
		{"countdown blinking state", "4SD", Item{"value": map[string]interface{}{"display": "0000", "seconds": 0.0, "blinking": true}},
			model.Countdown{Action: model.ActionBlinkStart, Display: "0000"}},
		{"countdown text in value", "4SD", Item{"value": "0000", "action": "blink_start"},
			model.Countdown{Action: model.ActionBlinkStart, Display: "0000"}},
		{"countdown blink stop", "4SD", Item{"value": "1200", "action": "blink_stop"},
			model.Countdown{Action: model.ActionBlinkStop, Display: "1200"}},
		{"ir", "IR", Item{"value": "0xFF30CF"}, model.IRCode{Code: "0xFF30CF"}},
	}
	r := NewReducer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := r.Reduce("PI1", tt.sensor, tt.item)
			if err != nil || !ok {
				t.Fatalf("Reduce: ok=%v err=%v", ok, err)
			}
			if o, isO := got.State.(model.Orientation); isO {
				o.Delta = nil
				got.State = o
			}
			if got.State != tt.want {
				t.Errorf("got %+v, want %+v", got.State, tt.want)
			}
			if got.Kind != tt.want.Kind() || got.Device != "PI1" || got.Sensor != tt.sensor {
				t.Errorf("unexpected reading header %+v", got)
			}
		})
	}
}

func TestReducer_OrientationDelta(t *testing.T) {
	got, _, err := NewReducer().Reduce("PI2", "GSG", Item{"ax": 0, "ay": 0, "az": 1, "delta": 2.26})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	o := got.State.(model.Orientation)
	if o.Delta == nil || *o.Delta != 2.3 {
		t.Errorf("got delta %v, want 2.3", o.Delta)
	}
}

func TestReducer_UnknownKind(t *testing.T) {
	_, ok, err := NewReducer().Reduce("PI1", "ZZZ", Item{"value": 1})
	if ok || err != nil {
		t.Errorf("got ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestReducer_BadValues(t *testing.T) {
	r := NewReducer()
	tests := []struct {
		sensor string
		item   Item
		want   error
	}{
		{"DHT1", Item{"value": 21.0}, ErrBadValue},
		{"DHT1", Item{"value": map[string]interface{}{"temperature": 21.0}}, ErrMissingField},
		{"DUS2", Item{"value": "far"}, ErrBadValue},
		{"BRGB", Item{"value": "red"}, ErrBadValue},
		{"GSG", Item{"ax": 1.0}, ErrMissingField},
		{"4SD", Item{}, ErrMissingField},
		{"4SD", Item{"value": 5.0}, ErrMissingField},
		{"IR", Item{"value": ""}, ErrBadValue},
	}
	for _, tt := range tests {
		_, ok, err := r.Reduce("PI1", tt.sensor, tt.item)
		if ok || !errors.Is(err, tt.want) {
			t.Errorf("%s %v: got ok=%v err=%v, want %v", tt.sensor, tt.item, ok, err, tt.want)
		}
	}
}

func TestReducer_Register(t *testing.T) {
	r := NewReducer()
	if _, ok, _ := r.Reduce("PI1", "DMS", Item{}); ok {
		t.Fatal("DMS should not be known by default")
	}
	r.Register("DMS", func(it Item) (model.State, error) { return model.Button{Pressed: true}, nil })
	got, ok, err := r.Reduce("PI1", "DMS", Item{})
	if !ok || err != nil || got.State != (model.Button{Pressed: true}) {
		t.Errorf("got %+v ok=%v err=%v", got, ok, err)
	}
}
