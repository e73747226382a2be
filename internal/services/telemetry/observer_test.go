package telemetry

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRegistry_NotifiesInRegistrationOrder(t *testing.T) {
	r := NewRegistry(quietLogger(), nil)
	var order []string
	_ = r.Subscribe(EventSensorData, func(interface{}) error { order = append(order, "A"); return nil })
	_ = r.Subscribe(EventSensorData, func(interface{}) error { order = append(order, "B"); return nil })

	if err := r.Publish(EventSensorData, model.SensorReading{Device: "PI1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if strings.Join(order, "") != "AB" {
		t.Errorf("got order %v, want [A B]", order)
	}
}

func TestRegistry_DuplicateRegistrationFiresTwice(t *testing.T) {
	r := NewRegistry(quietLogger(), nil)
	calls := 0
	l := func(interface{}) error { calls++; return nil }
	_ = r.Subscribe(EventConnect, l)
	_ = r.Subscribe(EventConnect, l)
	_ = r.Publish(EventConnect, nil)
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
	if r.Count(EventConnect) != 2 {
		t.Errorf("Count = %d, want 2", r.Count(EventConnect))
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry(quietLogger(), nil)
	err := r.Subscribe(EventKind("sensordata"), func(interface{}) error { return nil })
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Subscribe err = %v, want ErrUnknownEvent", err)
	}
	if err := r.Publish(EventKind("bogus"), nil); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Publish err = %v, want ErrUnknownEvent", err)
	}
	if err := r.Subscribe(EventConnect, nil); err == nil {
		t.Error("expected error for nil listener")
	}
}

func TestRegistry_FailingListenerIsolated(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics(nil)
	r := NewRegistry(bufferLogger(&buf), m)

	reached := 0
	_ = r.Subscribe(EventAlarmState, func(interface{}) error { return errors.New("boom") })
	_ = r.Subscribe(EventAlarmState, func(interface{}) error { panic("kaboom") })
	_ = r.Subscribe(EventAlarmState, func(interface{}) error { reached++; return nil })

	if err := r.Publish(EventAlarmState, model.AlarmArmed); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if reached != 1 {
		t.Errorf("last listener ran %d times, want 1", reached)
	}
	if got := testutil.ToFloat64(m.ListenerFailures.WithLabelValues(string(EventAlarmState))); got != 2 {
		t.Errorf("listener failures = %v, want 2", got)
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Errorf("expected panic to be logged, got %q", buf.String())
	}
}

func TestRegistry_TypedHelpers(t *testing.T) {
	r := NewRegistry(quietLogger(), nil)
	var gotCount model.PersonCount
	var gotState model.AlarmState
	_ = r.OnPersonCount(func(pc model.PersonCount) error { gotCount = pc; return nil })
	_ = r.OnAlarmState(func(s model.AlarmState) error { gotState = s; return nil })

	_ = r.Publish(EventPersonCount, model.Count(3))
	_ = r.Publish(EventAlarmState, model.AlarmGrace)

	if gotCount != model.Count(3) {
		t.Errorf("got count %+v, want 3", gotCount)
	}
	if gotState != model.AlarmGrace {
		t.Errorf("got state %q, want GRACE", gotState)
	}
}
