package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// isActive accepts both encodings nodes use for "on": the number 1 and
// the boolean true. Everything else is off.
func isActive(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x == 1
	case int:
		return x == 1
	case int64:
		return x == 1
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 1
	}
	return false
}

// asFloat reads numbers and numeric strings.
func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// round1 keeps one decimal place so consumers do not churn on float noise.
func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// channel255 rescales a 0..1 fraction to a 0..255 channel.
func channel255(v interface{}) uint8 {
	f, ok := asFloat(v)
	if !ok {
		if isActive(v) {
			return 255
		}
		return 0
	}
	n := math.Round(f * 255)
	switch {
	case n < 0:
		return 0
	case n > 255:
		return 255
	}
	return uint8(n)
}
