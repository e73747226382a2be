package telemetry

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrBadValue     = errors.New("bad value")
)

// Item is one decoded envelope item, device already resolved.
type Item map[string]interface{}

func (it Item) str(key string) string {
	s, _ := it[key].(string)
	return s
}

// Value is the raw "value" field.
func (it Item) Value() interface{} { return it["value"] }

// Decoder turns an item into its normalized state. Decoders are pure.
type Decoder func(it Item) (model.State, error)

// Reducer dispatches items to decoders by sensor code.
// Register is meant for setup; it is not safe to call while routing.
type Reducer struct {
	decoders map[string]Decoder
}

func NewReducer() *Reducer {
	r := &Reducer{decoders: make(map[string]Decoder)}
	for _, f := range defaultFamilies {
		for _, code := range f.codes {
			r.decoders[code] = f.decode
		}
	}
	return r
}

type family struct {
	codes  []string
	decode Decoder
}

var defaultFamilies = []family{
	{[]string{"DHT1", "DHT2", "DHT3"}, decodeClimate},
	{[]string{"DPIR1", "DPIR2", "DPIR3"}, decodeMotion},
	{[]string{"DS1", "DS2"}, decodeDoor},
	{[]string{"DUS1", "DUS2"}, decodeDistance},
	{[]string{"DL", "DB"}, decodeSwitch},
	{[]string{"BRGB"}, decodeColor},
	{[]string{"GSG"}, decodeOrientation},
	{[]string{"4SD"}, decodeCountdown},
	{[]string{"BTN"}, decodeButton},
	{[]string{"IR"}, decodeIR},
}

// Register adds or replaces the decoder for a sensor code.
func (r *Reducer) Register(code string, d Decoder) {
	r.decoders[code] = d
}

// Reduce decodes one item. ok is false for sensor codes without a decoder;
// that is not an error.
func (r *Reducer) Reduce(device, sensor string, it Item) (reading model.SensorReading, ok bool, err error) {
	d, known := r.decoders[sensor]
	if !known {
		return model.SensorReading{}, false, nil
	}
	st, err := d(it)
	if err != nil {
		return model.SensorReading{}, false, fmt.Errorf("decode %s: %w", sensor, err)
	}
	return model.SensorReading{
		Device: device,
		Sensor: sensor,
		Kind:   st.Kind(),
		Value:  it.Value(),
		State:  st,
	}, true, nil
}

func decodeClimate(it Item) (model.State, error) {
	v, ok := it.Value().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: climate value is %T, want object", ErrBadValue, it.Value())
	}
	t, okT := asFloat(v["temperature"])
	h, okH := asFloat(v["humidity"])
	if !okT || !okH {
		return nil, fmt.Errorf("%w: temperature/humidity", ErrMissingField)
	}
	return model.Climate{Temperature: round1(t), Humidity: round1(h)}, nil
}

func decodeMotion(it Item) (model.State, error) {
	return model.Motion{Detected: isActive(it.Value())}, nil
}

func decodeDoor(it Item) (model.State, error) {
	return model.Contact{Open: isActive(it.Value())}, nil
}

func decodeSwitch(it Item) (model.State, error) {
	return model.Switch{On: isActive(it.Value())}, nil
}

func decodeButton(it Item) (model.State, error) {
	return model.Button{Pressed: isActive(it.Value())}, nil
}

func decodeDistance(it Item) (model.State, error) {
	d, ok := asFloat(it.Value())
	if !ok {
		return nil, fmt.Errorf("%w: distance %v", ErrBadValue, it.Value())
	}
	return model.Distance{Centimeters: round1(d), Alert: isActive(it["alert"])}, nil
}

func decodeColor(it Item) (model.State, error) {
	v, ok := it.Value().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: color value is %T, want object", ErrBadValue, it.Value())
	}
	return model.Color{R: channel255(v["r"]), G: channel255(v["g"]), B: channel255(v["b"])}, nil
}

// decodeOrientation reads the axes from the item itself; the gyroscope
// puts its scalar delta in "value" and the components alongside it. A bare
// movement event carries only a bool-like value and no axes at all.
func decodeOrientation(it Item) (model.State, error) {
	keys := [][2]string{{"ax", "x"}, {"ay", "y"}, {"az", "z"}}
	var axes [3]float64
	found := 0
	for i, k := range keys {
		for _, key := range k {
			if f, ok := asFloat(it[key]); ok {
				axes[i] = round1(f)
				found++
				break
			}
		}
	}
	if found == 0 {
		return model.Orientation{Significant: isActive(it["significant"]) || isActive(it.Value())}, nil
	}
	if found < len(keys) {
		return nil, fmt.Errorf("%w: orientation needs all three axes", ErrMissingField)
	}
	o := model.Orientation{X: axes[0], Y: axes[1], Z: axes[2], Significant: isActive(it["significant"])}
	if d, ok := asFloat(it["delta"]); ok {
		d = round1(d)
		o.Delta = &d
	}
	return o, nil
}

// decodeCountdown accepts the explicit form {"action", "display"}, the
// text carried in "value", and the display state object
// {"display", "seconds", "blinking"} which has no action.
func decodeCountdown(it Item) (model.State, error) {
	action := it.str("action")
	display := it.str("display")
	switch v := it.Value().(type) {
	case string:
		if display == "" {
			display = v
		}
		if action == "" {
			action = string(model.ActionShowTime)
		}
	case map[string]interface{}:
		if display == "" {
			display, _ = v["display"].(string)
		}
		if action == "" {
			action = string(model.ActionShowTime)
			if isActive(v["blinking"]) {
				action = string(model.ActionBlinkStart)
			}
		}
	}
	if action == "" {
		return nil, fmt.Errorf("%w: action", ErrMissingField)
	}
	return model.Countdown{Action: model.CountdownAction(action), Display: display}, nil
}

func decodeIR(it Item) (model.State, error) {
	switch v := it.Value().(type) {
	case string:
		if v != "" {
			return model.IRCode{Code: v}, nil
		}
	case float64:
		return model.IRCode{Code: strconv.FormatFloat(v, 'f', -1, 64)}, nil
	}
	return nil, fmt.Errorf("%w: ir code %v", ErrBadValue, it.Value())
}
