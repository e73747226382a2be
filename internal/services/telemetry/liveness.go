package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
)

const (
	DefaultLivenessThreshold = 30 * time.Second
	DefaultTickInterval      = 5 * time.Second
)

type livenessRecord struct {
	lastSeen time.Time
	online   bool // result of the previous Tick
}

// Tracker keeps the last-seen time of every device. Going offline is
// detected purely by time: Tick compares against the threshold.
type Tracker struct {
	mu        sync.Mutex
	threshold time.Duration
	records   map[string]*livenessRecord
}

func NewTracker(threshold time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultLivenessThreshold
	}
	return &Tracker{threshold: threshold, records: make(map[string]*livenessRecord)}
}

func (t *Tracker) Threshold() time.Duration { return t.threshold }

// RecordSeen marks device as seen at ts. Records are created lazily and
// start offline, so the next Tick announces a new device.
func (t *Tracker) RecordSeen(device string, ts time.Time) {
	if device == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[device]
	if !ok {
		t.records[device] = &livenessRecord{lastSeen: ts}
		return
	}
	if ts.After(rec.lastSeen) {
		rec.lastSeen = ts
	}
}

// IsOnline reports whether device was seen less than threshold before now.
func (t *Tracker) IsOnline(device string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[device]
	return ok && t.alive(rec, now)
}

func (t *Tracker) alive(rec *livenessRecord, now time.Time) bool {
	return now.Sub(rec.lastSeen) < t.threshold
}

// Tick re-evaluates every device and returns one change per device whose
// online flag differs from the previous Tick, ordered by device id.
func (t *Tracker) Tick(now time.Time) []model.LivenessChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changes []model.LivenessChange
	for dev, rec := range t.records {
		online := t.alive(rec, now)
		if online == rec.online {
			continue
		}
		rec.online = online
		changes = append(changes, model.LivenessChange{
			Device:   dev,
			Online:   online,
			LastSeen: rec.lastSeen,
			At:       now,
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Device < changes[j].Device })
	return changes
}

// Snapshot lists every known device with its current liveness.
func (t *Tracker) Snapshot(now time.Time) []model.DeviceLiveness {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.DeviceLiveness, 0, len(t.records))
	for dev, rec := range t.records {
		out = append(out, model.DeviceLiveness{Device: dev, Online: t.alive(rec, now), LastSeen: rec.lastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// OnlineCount is the number of devices currently within the threshold.
func (t *Tracker) OnlineCount(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rec := range t.records {
		if t.alive(rec, now) {
			n++
		}
	}
	return n
}

// Watch ticks every interval until ctx is done and hands each change to notify.
func (t *Tracker) Watch(ctx context.Context, interval time.Duration, now func() time.Time, notify func(model.LivenessChange)) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range t.Tick(now()) {
				notify(c)
			}
		}
	}
}
