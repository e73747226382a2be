package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/LeonardoBeccarini/smarthome_router/internal/config"
	"github.com/LeonardoBeccarini/smarthome_router/internal/simulator"
	"github.com/LeonardoBeccarini/smarthome_router/pkg/mqttbus"
)

func main() {
	var (
		configPath    = pflag.String("config", "", "path to the YAML settings file")
		devices       = pflag.StringSlice("devices", []string{"PI1", "PI2", "PI3"}, "devices to simulate")
		sensors       = pflag.StringSlice("sensors", nil, "sensor codes for every device (default: the device's own set)")
		interval      = pflag.Duration("interval", time.Second, "sampling interval")
		maxBatch      = pflag.Int("max-batch", simulator.DefaultMaxBatch, "flush after this many items")
		batchInterval = pflag.Duration("batch-interval", simulator.DefaultBatchInterval, "flush at least this often")
		alarmState    = pflag.String("alarm-state", "", "publish this alarm state once connected")
		personCount   = pflag.Int("person-count", -1, "publish this person count once connected")
		trigger       = pflag.String("trigger", "", "publish an alarm trigger with this reason once connected")
		logLevel      = pflag.String("log-level", "", "override the configured log level")
	)
	pflag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "node-sim: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}
	level, err := settings.Level()
	if err != nil {
		fmt.Fprintf(os.Stderr, "node-sim: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := settings.Bus()
	bus.ClientID = ""
	session := mqttbus.NewSession(bus.WithDefaults("node-sim"), logger)
	topics := settings.Topics
	breaker := settings.BreakerSettings()
	sensorPub := mqttbus.NewPublisher(session, topics.Sensors, bus.QoS, breaker, logger)
	statePub := mqttbus.NewPublisher(session, topics.AlarmState, bus.QoS, breaker, logger).Retained()
	countPub := mqttbus.NewPublisher(session, topics.PersonCount, bus.QoS, breaker, logger).Retained()
	triggerPub := mqttbus.NewPublisher(session, topics.AlarmTrigger, bus.QoS, breaker, logger)

	var nodes []*simulator.Node
	for i, dev := range *devices {
		dev = strings.ToUpper(strings.TrimSpace(dev))
		gen := simulator.NewGenerator(dev, *sensors, time.Now().UnixNano()+int64(i))
		batcher := simulator.NewBatcher(sensorPub, dev, *maxBatch, *batchInterval, logger.With("device", dev))
		nodes = append(nodes, simulator.NewNode(gen, batcher, logger.With("device", dev)))
	}

	var announce sync.Once
	session.Start(ctx, mqttbus.Hooks{
		OnConnect: func() {
			err := session.Subscribe(topics.Commands, func(topic string, payload []byte) {
				for _, n := range nodes {
					n.HandleCommand(topic, payload)
				}
			})
			if err != nil {
				logger.Warn("command subscription failed", "err", err)
			}
			announce.Do(func() {
				if *alarmState != "" {
					if err := simulator.PublishAlarmState(statePub, "simulator", *alarmState); err != nil {
						logger.Warn("alarm state not published", "err", err)
					}
				}
				if *personCount >= 0 {
					if err := simulator.PublishPersonCount(countPub, "simulator", *personCount); err != nil {
						logger.Warn("person count not published", "err", err)
					}
				}
				if *trigger != "" {
					if err := simulator.PublishTrigger(triggerPub, "simulator", *trigger); err != nil {
						logger.Warn("alarm trigger not published", "err", err)
					}
				}
			})
		},
	})
	defer session.Close()

	logger.Info("node-sim: started", "devices", *devices, "broker", bus.BrokerURL())
	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n *simulator.Node) {
			defer wg.Done()
			n.Start(ctx, *interval)
		}(n)
	}
	<-ctx.Done()
	wg.Wait()
	logger.Info("node-sim: shutting down")
}
