package telemetry

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

type routerFixture struct {
	router   *Router
	registry *Registry
	tracker  *Tracker
	metrics  *Metrics
	logs     *bytes.Buffer

	readings []model.SensorReading
	states   []model.AlarmState
	counts   []model.PersonCount
	triggers []model.AlarmTrigger
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{logs: &bytes.Buffer{}, metrics: NewMetrics(nil)}
	logger := bufferLogger(f.logs)
	f.registry = NewRegistry(logger, f.metrics)
	f.tracker = NewTracker(30 * time.Second)
	f.router = NewRouter(DefaultTopics(), NewReducer(), f.tracker, f.registry, logger, f.metrics)
	f.router.now = func() time.Time { return t0 }

	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(f.registry.OnSensorData(func(r model.SensorReading) error { f.readings = append(f.readings, r); return nil }))
	must(f.registry.OnAlarmState(func(s model.AlarmState) error { f.states = append(f.states, s); return nil }))
	must(f.registry.OnPersonCount(func(pc model.PersonCount) error { f.counts = append(f.counts, pc); return nil }))
	must(f.registry.OnAlarmTrigger(func(tr model.AlarmTrigger) error { f.triggers = append(f.triggers, tr); return nil }))
	return f
}

func (f *routerFixture) dropped(reason string) float64 {
	return testutil.ToFloat64(f.metrics.Dropped.WithLabelValues(reason))
}

func TestRouter_BatchInheritsDevice(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/sensors", []byte(`{"device":"PI1","batch":true,"items":[
		{"sensor":"DPIR1","value":true},
		{"sensor":"DS1","value":0,"device":"PI2"}]}`))

	if len(f.readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(f.readings))
	}
	if f.readings[0].Device != "PI1" || f.readings[0].State != (model.Motion{Detected: true}) {
		t.Errorf("first reading = %+v, want PI1 motion detected", f.readings[0])
	}
	if f.readings[1].Device != "PI2" {
		t.Errorf("explicit item device overridden: %+v", f.readings[1])
	}
	if !f.readings[0].ReceivedAt.Equal(t0) {
		t.Errorf("ReceivedAt = %v, want %v", f.readings[0].ReceivedAt, t0)
	}
	if !f.tracker.IsOnline("PI1", t0.Add(10*time.Second)) || !f.tracker.IsOnline("PI2", t0) {
		t.Error("both devices should have been recorded as seen")
	}
}

func TestRouter_SingleItemWithoutItemsArray(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/sensors", []byte(`{"device":"PI3","sensor":"DHT1","value":{"temperature":20.04,"humidity":55}}`))
	if len(f.readings) != 1 || f.readings[0].State != (model.Climate{Temperature: 20, Humidity: 55}) {
		t.Errorf("got %+v, want one climate reading", f.readings)
	}
}

func TestRouter_NodeEventShapes(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/sensors", []byte(`{"device":"PI2","batch":true,"items":[
		{"sensor":"GSG","value":true,"simulated":true},
		{"sensor":"4SD","value":{"display":"0000","seconds":0,"blinking":true}}]}`))

	if len(f.readings) != 2 {
		t.Fatalf("got %d readings, want 2: %s", len(f.readings), f.logs.String())
	}
	if f.readings[0].State != (model.Orientation{Significant: true}) {
		t.Errorf("movement = %+v, want significant orientation", f.readings[0].State)
	}
	if f.readings[1].State != (model.Countdown{Action: model.ActionBlinkStart, Display: "0000"}) {
		t.Errorf("countdown = %+v", f.readings[1].State)
	}
	if f.dropped(dropBadPayload) != 0 {
		t.Errorf("bad payload drops = %v, want 0", f.dropped(dropBadPayload))
	}
}

func TestRouter_MalformedThenValid(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/sensors", []byte(`{"device":"PI1","items":[`))
	f.router.Route("iot/sensors", []byte(`{"device":"PI1","items":[{"sensor":"DL","value":1}]}`))

	if len(f.readings) != 1 || f.readings[0].State != (model.Switch{On: true}) {
		t.Errorf("got %+v, want exactly the valid reading", f.readings)
	}
	if f.dropped(dropDecode) != 1 {
		t.Errorf("decode drops = %v, want 1", f.dropped(dropDecode))
	}
	if !strings.Contains(f.logs.String(), "level=WARN") {
		t.Errorf("expected a warning, got %q", f.logs.String())
	}
}

func TestRouter_UnknownKindDoesNotAffectSiblings(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/sensors", []byte(`{"device":"PI1","items":[
		{"sensor":"ZZZ","value":1},
		{"sensor":"DPIR2","value":1},
		{"sensor":"ZZZ","value":"x"}]}`))

	if len(f.readings) != 1 || f.readings[0].Sensor != "DPIR2" {
		t.Errorf("got %+v, want only DPIR2", f.readings)
	}
	if f.dropped(dropUnknownKind) != 2 {
		t.Errorf("unknown kind drops = %v, want 2", f.dropped(dropUnknownKind))
	}
	if strings.Contains(f.logs.String(), "level=WARN") {
		t.Errorf("unknown kinds must not warn: %q", f.logs.String())
	}
	// unknown sensors still prove the node is alive
	if !f.tracker.IsOnline("PI1", t0) {
		t.Error("PI1 should be online")
	}
}

func TestRouter_BadItemsSkipped(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/sensors", []byte(`{"items":[
		"junk",
		{"sensor":"DS1","value":1},
		{"device":"PI1","value":1},
		{"device":"PI1","sensor":"DHT1","value":21},
		{"device":"PI1","sensor":"DS2","value":true}]}`))

	if len(f.readings) != 1 || f.readings[0].Sensor != "DS2" {
		t.Errorf("got %+v, want only DS2", f.readings)
	}
	if f.dropped(dropMissingField) != 2 || f.dropped(dropBadPayload) != 2 {
		t.Errorf("drops missing=%v bad=%v, want 2 and 2", f.dropped(dropMissingField), f.dropped(dropBadPayload))
	}
}

func TestRouter_EnvelopeShapes(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/sensors", []byte(`[1,2]`))
	f.router.Route("iot/sensors", []byte(`{"device":"PI1","items":{"sensor":"DL"}}`))
	if len(f.readings) != 0 {
		t.Errorf("got %+v, want nothing", f.readings)
	}
	if f.dropped(dropBadPayload) != 2 {
		t.Errorf("bad payload drops = %v, want 2", f.dropped(dropBadPayload))
	}
}

func TestRouter_AlarmState(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/alarm/state", []byte(`"ARMED"`))
	f.router.Route("iot/alarm/state", []byte(`{"source":"PI1","state":"GRACE"}`))
	f.router.Route("iot/alarm/state", []byte(`{"state":"SNOOZE"}`))
	f.router.Route("iot/alarm/state", []byte(`42`))
	f.router.Route("iot/alarm/state", []byte(`ARMED`))

	want := []model.AlarmState{model.AlarmArmed, model.AlarmGrace, "SNOOZE"}
	if len(f.states) != len(want) {
		t.Fatalf("got %v, want %v", f.states, want)
	}
	for i := range want {
		if f.states[i] != want[i] {
			t.Errorf("state %d = %q, want %q", i, f.states[i], want[i])
		}
	}
}

func TestRouter_PersonCount(t *testing.T) {
	tests := []struct {
		payload string
		want    model.PersonCount
	}{
		{`7`, model.Count(7)},
		{`"7"`, model.Count(7)},
		{`{"source":"PI1","count":7}`, model.Count(7)},
		{`{"count":"7"}`, model.Count(7)},
		{`2.9`, model.Count(2)},
		{`"3.0"`, model.Count(3)},
		{`"abc"`, model.UnknownPersonCount},
		{`null`, model.UnknownPersonCount},
		{`{"count":{"count":1}}`, model.UnknownPersonCount},
	}
	for _, tt := range tests {
		f := newRouterFixture(t)
		f.router.Route("iot/home/person_count", []byte(tt.payload))
		if len(f.counts) != 1 || f.counts[0] != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.payload, f.counts, tt.want)
		}
	}
}

func TestRouter_AlarmTrigger(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/alarm/trigger", []byte(`{"source":"PI2","reason":"door_open"}`))
	f.router.Route("iot/alarm/trigger", []byte(`{"reason":"motion"}`))
	f.router.Route("iot/alarm/trigger", []byte(`"now"`))

	want := []model.AlarmTrigger{{Source: "PI2", Reason: "door_open"}, {Source: "unknown", Reason: "motion"}}
	if len(f.triggers) != 2 || f.triggers[0] != want[0] || f.triggers[1] != want[1] {
		t.Errorf("got %+v, want %+v", f.triggers, want)
	}
}

func TestRouter_UnknownTopicIgnored(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Route("iot/other", []byte(`not json at all`))
	if f.dropped(dropUnknownTopic) != 1 || f.dropped(dropDecode) != 0 {
		t.Errorf("unknown=%v decode=%v, want 1 and 0", f.dropped(dropUnknownTopic), f.dropped(dropDecode))
	}
	if strings.Contains(f.logs.String(), "level=WARN") {
		t.Errorf("unknown topic must not warn: %q", f.logs.String())
	}
}

func TestRouter_AnnounceLiveness(t *testing.T) {
	f := newRouterFixture(t)
	var changes []model.LivenessChange
	_ = f.registry.OnLiveness(func(c model.LivenessChange) error { changes = append(changes, c); return nil })

	f.router.Route("iot/sensors", []byte(`{"device":"PI1","sensor":"DL","value":0}`))
	for _, c := range f.tracker.Tick(t0.Add(time.Second)) {
		f.router.announce(c)
	}
	if len(changes) != 1 || !changes[0].Online {
		t.Fatalf("got %+v, want PI1 online", changes)
	}
	if got := testutil.ToFloat64(f.metrics.DevicesOnline); got != 1 {
		t.Errorf("devices online = %v, want 1", got)
	}
}
