package telemetry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

// EventKind names one observer channel. The set is closed: subscribing to
// anything else is an error, so a typo cannot create a silent channel.
type EventKind string

const (
	EventConnect      EventKind = "connect"
	EventDisconnect   EventKind = "disconnect"
	EventSensorData   EventKind = "sensorData"
	EventAlarmState   EventKind = "alarmState"
	EventPersonCount  EventKind = "personCount"
	EventLiveness     EventKind = "deviceLiveness"
	EventAlarmTrigger EventKind = "alarmTrigger"
)

var eventKinds = []EventKind{
	EventConnect, EventDisconnect, EventSensorData, EventAlarmState,
	EventPersonCount, EventLiveness, EventAlarmTrigger,
}

// ErrUnknownEvent is returned for an event kind outside the fixed set.
var ErrUnknownEvent = errors.New("unknown event kind")

// Listener receives one event payload. connect and disconnect carry nil.
// The payload is shared by every listener of the fan-out.
type Listener func(payload interface{}) error

// Registry fans events out to listeners in registration order.
type Registry struct {
	mu        sync.RWMutex
	listeners map[EventKind][]Listener
	logger    *slog.Logger
	metrics   *Metrics
}

func NewRegistry(logger *slog.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	r := &Registry{
		listeners: make(map[EventKind][]Listener, len(eventKinds)),
		logger:    logger,
		metrics:   metrics,
	}
	for _, k := range eventKinds {
		r.listeners[k] = nil
	}
	return r
}

// Subscribe appends l to kind's list. Registering the same listener twice
// makes it fire twice.
func (r *Registry) Subscribe(kind EventKind, l Listener) error {
	if l == nil {
		return errors.New("nil listener")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list, ok := r.listeners[kind]
	if !ok {
		return fmt.Errorf("subscribe %q: %w", kind, ErrUnknownEvent)
	}
	r.listeners[kind] = append(list, l)
	return nil
}

// Publish calls every listener of kind with payload. A failing listener is
// logged and skipped; the rest still run.
func (r *Registry) Publish(kind EventKind, payload interface{}) error {
	r.mu.RLock()
	list, ok := r.listeners[kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("publish %q: %w", kind, ErrUnknownEvent)
	}
	for i, l := range list {
		if err := r.invoke(l, payload); err != nil {
			r.metrics.ListenerFailures.WithLabelValues(string(kind)).Inc()
			r.logger.Warn("listener failed", "event", kind, "listener", i, "err", err)
		}
	}
	return nil
}

func (r *Registry) invoke(l Listener, payload interface{}) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panic: %v", p)
		}
	}()
	return l(payload)
}

// Count is the number of listeners registered for kind.
func (r *Registry) Count(kind EventKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[kind])
}

func (r *Registry) OnSensorData(fn func(model.SensorReading) error) error {
	return r.Subscribe(EventSensorData, func(p interface{}) error {
		v, ok := p.(model.SensorReading)
		if !ok {
			return fmt.Errorf("sensorData: unexpected payload %T", p)
		}
		return fn(v)
	})
}

func (r *Registry) OnAlarmState(fn func(model.AlarmState) error) error {
	return r.Subscribe(EventAlarmState, func(p interface{}) error {
		v, ok := p.(model.AlarmState)
		if !ok {
			return fmt.Errorf("alarmState: unexpected payload %T", p)
		}
		return fn(v)
	})
}

func (r *Registry) OnPersonCount(fn func(model.PersonCount) error) error {
	return r.Subscribe(EventPersonCount, func(p interface{}) error {
		v, ok := p.(model.PersonCount)
		if !ok {
			return fmt.Errorf("personCount: unexpected payload %T", p)
		}
		return fn(v)
	})
}

func (r *Registry) OnLiveness(fn func(model.LivenessChange) error) error {
	return r.Subscribe(EventLiveness, func(p interface{}) error {
		v, ok := p.(model.LivenessChange)
		if !ok {
			return fmt.Errorf("deviceLiveness: unexpected payload %T", p)
		}
		return fn(v)
	})
}

func (r *Registry) OnAlarmTrigger(fn func(model.AlarmTrigger) error) error {
	return r.Subscribe(EventAlarmTrigger, func(p interface{}) error {
		v, ok := p.(model.AlarmTrigger)
		if !ok {
			return fmt.Errorf("alarmTrigger: unexpected payload %T", p)
		}
		return fn(v)
	})
}
