package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

var ErrBadPayload = errors.New("bad payload")

// normalizeAlarmState accepts "ARMED" or {"state":"ARMED"}. The label is
// forwarded unchanged; interpreting it is up to observers.
func normalizeAlarmState(v interface{}) (model.AlarmState, error) {
	if m, ok := v.(map[string]interface{}); ok {
		v = m["state"]
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: alarm state %v", ErrBadPayload, v)
	}
	return model.AlarmState(strings.TrimSpace(s)), nil
}

// normalizePersonCount accepts 7, "7" or {"count":7}. Anything it cannot
// read becomes the unknown sentinel rather than an error.
func normalizePersonCount(v interface{}) model.PersonCount {
	if m, ok := v.(map[string]interface{}); ok {
		v = m["count"]
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return model.UnknownPersonCount
		}
		return model.Count(int(math.Trunc(x)))
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			return model.Count(n)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return model.Count(int(math.Trunc(f)))
		}
	}
	return model.UnknownPersonCount
}

func normalizeTrigger(v interface{}) (model.AlarmTrigger, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return model.AlarmTrigger{}, fmt.Errorf("%w: trigger is %T, want object", ErrBadPayload, v)
	}
	t := model.AlarmTrigger{Source: "unknown"}
	if s, ok := m["source"].(string); ok && s != "" {
		t.Source = s
	}
	t.Reason, _ = m["reason"].(string)
	return t, nil
}
