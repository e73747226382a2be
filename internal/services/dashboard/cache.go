package dashboard

import (
	"sort"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
	"github.com/LeonardoBeccarini/smarthome_router/internal/services/telemetry"
)

// Cache remembers the latest value of everything the router announces.
// The router itself keeps no state; views that need "current" values
// read them from here.
type Cache struct {
	mu          sync.RWMutex
	connected   bool
	alarm       model.AlarmState
	persons     *model.PersonCount
	lastTrigger *model.AlarmTrigger
	triggeredAt time.Time
	readings    map[string]map[string]model.SensorReading
	now         func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		readings: make(map[string]map[string]model.SensorReading),
		now:      time.Now,
	}
}

// Attach subscribes the cache to every event it keeps.
func (c *Cache) Attach(r *telemetry.Registry) error {
	subs := []error{
		r.Subscribe(telemetry.EventConnect, func(interface{}) error { c.setConnected(true); return nil }),
		r.Subscribe(telemetry.EventDisconnect, func(interface{}) error { c.setConnected(false); return nil }),
		r.OnSensorData(c.putReading),
		r.OnAlarmState(c.putAlarm),
		r.OnPersonCount(c.putPersons),
		r.OnAlarmTrigger(c.putTrigger),
	}
	for _, err := range subs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Cache) putReading(r model.SensorReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	dev, ok := c.readings[r.Device]
	if !ok {
		dev = make(map[string]model.SensorReading)
		c.readings[r.Device] = dev
	}
	dev[r.Sensor] = r
	return nil
}

func (c *Cache) putAlarm(s model.AlarmState) error {
	c.mu.Lock()
	c.alarm = s
	c.mu.Unlock()
	return nil
}

func (c *Cache) putPersons(pc model.PersonCount) error {
	c.mu.Lock()
	c.persons = &pc
	c.mu.Unlock()
	return nil
}

func (c *Cache) putTrigger(t model.AlarmTrigger) error {
	c.mu.Lock()
	c.lastTrigger = &t
	c.triggeredAt = c.now()
	c.mu.Unlock()
	return nil
}

// Status is the JSON body of GET /api/status.
type Status struct {
	Connected   bool                `json:"connected"`
	Alarm       model.AlarmState    `json:"alarm_state,omitempty"`
	Persons     *model.PersonCount  `json:"person_count"`
	LastTrigger *model.AlarmTrigger `json:"last_trigger,omitempty"`
	TriggeredAt *time.Time          `json:"triggered_at,omitempty"`
}

func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{Connected: c.connected, Alarm: c.alarm}
	if c.persons != nil {
		pc := *c.persons
		st.Persons = &pc
	}
	if c.lastTrigger != nil {
		t := *c.lastTrigger
		at := c.triggeredAt
		st.LastTrigger, st.TriggeredAt = &t, &at
	}
	return st
}

// Readings returns the latest reading per sensor of device, sorted by sensor.
func (c *Cache) Readings(device string) []model.SensorReading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dev := c.readings[device]
	out := make([]model.SensorReading, 0, len(dev))
	for _, r := range dev {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sensor < out[j].Sensor })
	return out
}
