package simulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model/messages"
	"github.com/LeonardoBeccarini/smarthome_router/pkg/mqttbus"
)

// Node is one simulated device: a generator feeding a batcher, plus the
// node's reaction to commands addressed to it.
type Node struct {
	gen     *Generator
	batcher *Batcher
	logger  *slog.Logger
	now     func() time.Time
}

func NewNode(gen *Generator, batcher *Batcher, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{gen: gen, batcher: batcher, logger: logger, now: time.Now}
}

// Start samples every interval until ctx is done.
func (n *Node) Start(ctx context.Context, interval time.Duration) {
	done := make(chan struct{})
	go func() {
		n.batcher.Run(ctx)
		close(done)
	}()
	defer func() { <-done }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Sample()
		}
	}
}

// Sample queues one reading of every sensor.
func (n *Node) Sample() {
	for _, it := range n.gen.Next(n.now()) {
		if err := n.batcher.Add(it); err != nil {
			n.logger.Warn("sample not published", "device", n.gen.Device(), "err", err)
		}
	}
}

// HandleCommand is the command-topic handler. Commands for other nodes are
// ignored.
func (n *Node) HandleCommand(_ string, payload []byte) {
	var cmd messages.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		n.logger.Warn("invalid command", "err", err)
		return
	}
	if cmd.Target != n.gen.Device() {
		return
	}
	switch cmd.Command {
	case "light_on":
		n.gen.SetSwitch("DL", true)
	case "light_off":
		n.gen.SetSwitch("DL", false)
	case "buzzer_on", "alarm_on":
		n.gen.SetSwitch("DB", true)
	case "buzzer_off", "alarm_off":
		n.gen.SetSwitch("DB", false)
	default:
		n.logger.Info("command ignored", "device", cmd.Target, "command", cmd.Command, "params", cmd.Params)
		return
	}
	n.logger.Info("command applied", "device", cmd.Target, "command", cmd.Command)
}

// PublishAlarmState announces an alarm state the way the alarm owner does.
func PublishAlarmState(pub mqttbus.IPublisher, source, state string) error {
	body, err := json.Marshal(messages.AlarmStatePayload{Source: source, State: state})
	if err != nil {
		return err
	}
	return pub.PublishMessage(body)
}

// PublishPersonCount announces the occupant count.
func PublishPersonCount(pub mqttbus.IPublisher, source string, count int) error {
	body, err := json.Marshal(messages.PersonCountPayload{Source: source, Count: count})
	if err != nil {
		return err
	}
	return pub.PublishMessage(body)
}

// PublishTrigger asks the alarm owner to start the alarm.
func PublishTrigger(pub mqttbus.IPublisher, source, reason string) error {
	body, err := json.Marshal(messages.TriggerPayload{Source: source, Reason: reason})
	if err != nil {
		return err
	}
	return pub.PublishMessage(body)
}
