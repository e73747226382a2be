// Package simulator publishes fake node telemetry in the same batched
// envelopes real nodes use, so the router can be driven end to end.
package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model/messages"
)

// DefaultSensors mirrors the wiring of the three house nodes.
var DefaultSensors = map[string][]string{
	"PI1": {"DS1", "DL", "DUS1", "DB", "DPIR1", "DMS", "DHT1", "DHT2"},
	"PI2": {"DS2", "DUS2", "DPIR2", "GSG", "DHT3", "BTN"},
	"PI3": {"DPIR3", "BRGB", "IR", "4SD"},
}

var irCodes = []string{"0xFF30CF", "0xFF18E7", "0xFF7A85", "0xFF10EF"}

// Generator keeps a little state per sensor so consecutive readings look
// like a real house instead of white noise.
type Generator struct {
	mu      sync.Mutex
	device  string
	sensors []string
	rnd     *rand.Rand

	temp      map[string]float64
	humidity  map[string]float64
	switches  map[string]bool
	door      map[string]bool
	countdown time.Duration
}

func NewGenerator(device string, sensors []string, seed int64) *Generator {
	if len(sensors) == 0 {
		sensors = DefaultSensors[strings.ToUpper(device)]
	}
	return &Generator{
		device:    device,
		sensors:   sensors,
		rnd:       rand.New(rand.NewSource(seed)),
		temp:      map[string]float64{},
		humidity:  map[string]float64{},
		switches:  map[string]bool{},
		door:      map[string]bool{},
		countdown: 5 * time.Minute,
	}
}

func (g *Generator) Device() string { return g.device }

// SetSwitch changes an actuator; the next reading reports it.
func (g *Generator) SetSwitch(sensor string, on bool) {
	g.mu.Lock()
	g.switches[sensor] = on
	g.mu.Unlock()
}

func (g *Generator) Switch(sensor string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.switches[sensor]
}

// Next returns one item per configured sensor.
func (g *Generator) Next(now time.Time) []map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts := float64(now.UnixNano()) / 1e9
	items := make([]map[string]interface{}, 0, len(g.sensors))
	for _, s := range g.sensors {
		items = append(items, g.item(s, ts))
	}
	return items
}

func (g *Generator) item(sensor string, ts float64) map[string]interface{} {
	it := messages.Item(g.device, sensor, nil, true, ts)
	switch {
	case strings.HasPrefix(sensor, "DHT"):
		t := g.walk(g.temp, sensor, 22, 0.3, 15, 30)
		h := g.walk(g.humidity, sensor, 45, 1, 20, 80)
		it["value"] = map[string]interface{}{"temperature": round2(t), "humidity": round2(h)}
	case strings.HasPrefix(sensor, "DPIR"):
		it["value"] = g.rnd.Float64() < 0.1
	case strings.HasPrefix(sensor, "DS"):
		if g.rnd.Float64() < 0.05 {
			g.door[sensor] = !g.door[sensor]
		}
		it["value"] = boolInt(g.door[sensor])
	case strings.HasPrefix(sensor, "DUS"):
		d := 20 + g.rnd.Float64()*180
		it["value"] = round2(d)
		it["alert"] = d < 30
	case sensor == "DL" || sensor == "DB":
		it["value"] = boolInt(g.switches[sensor])
	case sensor == "BRGB":
		it["value"] = map[string]interface{}{
			"r": boolInt(g.rnd.Intn(2) == 1),
			"g": boolInt(g.rnd.Intn(2) == 1),
			"b": boolInt(g.rnd.Intn(2) == 1),
		}
	case sensor == "GSG":
		ax, ay := g.rnd.NormFloat64()*0.2, g.rnd.NormFloat64()*0.2
		az := 9.81 + g.rnd.NormFloat64()*0.1
		delta := math.Abs(g.rnd.NormFloat64())
		it["value"] = round2(delta)
		it["ax"], it["ay"], it["az"] = round2(ax), round2(ay), round2(az)
		it["delta"] = round2(delta)
		it["significant"] = delta > 1.5
	case sensor == "BTN":
		it["value"] = g.rnd.Float64() < 0.05
	case sensor == "IR":
		it["value"] = irCodes[g.rnd.Intn(len(irCodes))]
	case sensor == "4SD":
		g.countdown -= time.Second
		if g.countdown <= 0 {
			g.countdown = 5 * time.Minute
			it["action"] = "blink_start"
		} else {
			it["action"] = "show_time"
		}
		it["display"] = fmt.Sprintf("%02d:%02d", int(g.countdown.Minutes()), int(g.countdown.Seconds())%60)
	case sensor == "DMS":
		it["value"] = string("0123456789*#"[g.rnd.Intn(12)])
	default:
		it["value"] = g.rnd.Float64()
	}
	return it
}

// walk moves the stored value by at most step, starting at start and
// staying within [lo, hi].
func (g *Generator) walk(m map[string]float64, key string, start, step, lo, hi float64) float64 {
	v, ok := m[key]
	if !ok {
		v = start
	}
	v += (g.rnd.Float64()*2 - 1) * step
	v = math.Max(lo, math.Min(hi, v))
	m[key] = v
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
