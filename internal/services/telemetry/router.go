package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

var (
	ErrMissingDevice = errors.New("item has no device")
	ErrMissingSensor = errors.New("item has no sensor")
)

// Topics are matched exactly; no wildcards.
type Topics struct {
	Sensors      string `yaml:"sensors"`
	AlarmState   string `yaml:"alarm_state"`
	PersonCount  string `yaml:"person_count"`
	AlarmTrigger string `yaml:"alarm_trigger"`
	Commands     string `yaml:"commands"`
}

func DefaultTopics() Topics {
	return Topics{
		Sensors:      "iot/sensors",
		AlarmState:   "iot/alarm/state",
		PersonCount:  "iot/home/person_count",
		AlarmTrigger: "iot/alarm/trigger",
		Commands:     "iot/web/command",
	}
}

// WithDefaults fills empty topics from DefaultTopics.
func (t Topics) WithDefaults() Topics {
	d := DefaultTopics()
	if t.Sensors == "" {
		t.Sensors = d.Sensors
	}
	if t.AlarmState == "" {
		t.AlarmState = d.AlarmState
	}
	if t.PersonCount == "" {
		t.PersonCount = d.PersonCount
	}
	if t.AlarmTrigger == "" {
		t.AlarmTrigger = d.AlarmTrigger
	}
	if t.Commands == "" {
		t.Commands = d.Commands
	}
	return t
}

// Subscriptions is the inbound set, subscribed on every connect.
func (t Topics) Subscriptions() []string {
	return []string{t.Sensors, t.AlarmState, t.PersonCount, t.AlarmTrigger}
}

type topicClass string

const (
	classSensors      topicClass = "sensors"
	classAlarmState   topicClass = "alarm_state"
	classPersonCount  topicClass = "person_count"
	classAlarmTrigger topicClass = "alarm_trigger"
	classUnknown      topicClass = "unknown"
)

func (t Topics) classify(topic string) topicClass {
	switch topic {
	case t.Sensors:
		return classSensors
	case t.AlarmState:
		return classAlarmState
	case t.PersonCount:
		return classPersonCount
	case t.AlarmTrigger:
		return classAlarmTrigger
	}
	return classUnknown
}

// Router turns raw (topic, payload) pairs into typed events. It never
// returns an error: a bad message is logged, counted and dropped.
type Router struct {
	topics   Topics
	reducer  *Reducer
	tracker  *Tracker
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

func NewRouter(topics Topics, reducer *Reducer, tracker *Tracker, registry *Registry, logger *slog.Logger, metrics *Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Router{
		topics:   topics.WithDefaults(),
		reducer:  reducer,
		tracker:  tracker,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (r *Router) Topics() Topics { return r.topics }

func (r *Router) Route(topic string, payload []byte) {
	class := r.topics.classify(topic)
	r.metrics.Messages.WithLabelValues(string(class)).Inc()
	if class == classUnknown {
		r.metrics.Dropped.WithLabelValues(dropUnknownTopic).Inc()
		r.logger.Debug("message on unknown topic ignored", "topic", topic)
		return
	}

	var body interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		r.metrics.Dropped.WithLabelValues(dropDecode).Inc()
		r.logger.Warn("malformed payload dropped", "topic", topic, "err", err)
		return
	}

	switch class {
	case classSensors:
		r.routeSensors(topic, body)
	case classAlarmState:
		st, err := normalizeAlarmState(body)
		if err != nil {
			r.metrics.Dropped.WithLabelValues(dropBadPayload).Inc()
			r.logger.Warn("alarm state dropped", "topic", topic, "err", err)
			return
		}
		if !st.Known() {
			r.logger.Debug("unrecognised alarm state forwarded", "state", st)
		}
		r.publish(EventAlarmState, st)
	case classPersonCount:
		pc := normalizePersonCount(body)
		if !pc.Known {
			r.logger.Warn("person count unreadable, forwarding unknown", "topic", topic)
		}
		r.publish(EventPersonCount, pc)
	case classAlarmTrigger:
		tr, err := normalizeTrigger(body)
		if err != nil {
			r.metrics.Dropped.WithLabelValues(dropBadPayload).Inc()
			r.logger.Warn("alarm trigger dropped", "topic", topic, "err", err)
			return
		}
		r.publish(EventAlarmTrigger, tr)
	}
}

// routeSensors walks the envelope items in order. A single bad item is
// skipped without affecting its siblings.
func (r *Router) routeSensors(topic string, body interface{}) {
	env, ok := body.(map[string]interface{})
	if !ok {
		r.metrics.Dropped.WithLabelValues(dropBadPayload).Inc()
		r.logger.Warn("sensor envelope is not an object", "topic", topic)
		return
	}
	envDevice, _ := env["device"].(string)

	var items []interface{}
	switch raw := env["items"].(type) {
	case nil:
		items = []interface{}{env}
	case []interface{}:
		items = raw
	default:
		r.metrics.Dropped.WithLabelValues(dropBadPayload).Inc()
		r.logger.Warn("sensor envelope items is not an array", "topic", topic, "device", envDevice)
		return
	}

	received := r.now()
	for i, raw := range items {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			r.metrics.Dropped.WithLabelValues(dropBadPayload).Inc()
			r.logger.Warn("envelope item is not an object", "device", envDevice, "index", i)
			continue
		}
		r.routeItem(Item(obj), envDevice, i, received)
	}
}

func (r *Router) routeItem(it Item, envDevice string, index int, received time.Time) {
	device := it.str("device")
	if device == "" && envDevice != "" {
		device = envDevice
		it["device"] = device
	}
	sensor := it.str("sensor")
	if device == "" || sensor == "" {
		err := ErrMissingDevice
		if device != "" {
			err = ErrMissingSensor
		}
		r.metrics.Dropped.WithLabelValues(dropMissingField).Inc()
		r.logger.Warn("envelope item skipped", "index", index, "device", device, "sensor", sensor, "err", err)
		return
	}

	r.tracker.RecordSeen(device, received)

	reading, ok, err := r.reducer.Reduce(device, sensor, it)
	if err != nil {
		r.metrics.Dropped.WithLabelValues(dropBadPayload).Inc()
		r.logger.Warn("reading dropped", "device", device, "sensor", sensor, "err", err)
		return
	}
	if !ok {
		r.metrics.Dropped.WithLabelValues(dropUnknownKind).Inc()
		r.logger.Debug("unknown sensor kind ignored", "device", device, "sensor", sensor)
		return
	}
	reading.ReceivedAt = received
	r.metrics.Readings.WithLabelValues(reading.Kind).Inc()
	r.publish(EventSensorData, reading)
}

func (r *Router) publish(kind EventKind, payload interface{}) {
	if err := r.registry.Publish(kind, payload); err != nil {
		r.logger.Error("publish event", "event", kind, "err", err)
	}
}

// WatchLiveness runs the liveness tick until ctx is done, publishing a
// deviceLiveness event for every change.
func (r *Router) WatchLiveness(ctx context.Context, interval time.Duration) {
	r.tracker.Watch(ctx, interval, r.now, r.announce)
}

func (r *Router) announce(c model.LivenessChange) {
	r.metrics.DevicesOnline.Set(float64(r.tracker.OnlineCount(c.At)))
	if c.Online {
		r.logger.Info("device online", "device", c.Device)
	} else {
		r.logger.Warn("device offline", "device", c.Device, "last_seen", c.LastSeen)
	}
	r.publish(EventLiveness, c)
}
