package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model"
	"github.com/LeonardoBeccarini/smarthome_router/internal/model/messages"
	"github.com/LeonardoBeccarini/smarthome_router/pkg/mqttbus"
)

var (
	// ErrNotConnected is returned by PublishCommand while the broker is unreachable.
	ErrNotConnected   = mqttbus.ErrNotConnected
	ErrInvalidCommand = errors.New("invalid command")
)

// Transport is the broker session the Manager drives. *mqttbus.Session
// implements it; the session owns reconnection.
type Transport interface {
	mqttbus.Sender
	Start(ctx context.Context, hooks mqttbus.Hooks)
	Subscribe(topic string, handler mqttbus.MessageHandler) error
	IsConnected() bool
	Close()
}

// Dialer builds a transport for one session.
type Dialer func(cfg mqttbus.Config, logger *slog.Logger) Transport

// DialMQTT is the production Dialer.
func DialMQTT(cfg mqttbus.Config, logger *slog.Logger) Transport {
	return mqttbus.NewSession(cfg, logger)
}

// Manager owns the broker session: it subscribes on every (re)connect,
// feeds inbound messages to the Router one at a time and publishes
// commands.
type Manager struct {
	dial     Dialer
	router   *Router
	registry *Registry
	breaker  mqttbus.BreakerSettings
	logger   *slog.Logger
	metrics  *Metrics

	mu        sync.Mutex
	transport Transport
	commands  mqttbus.IPublisher
	status    model.ConnectionStatus

	inbound sync.Mutex
}

func NewManager(dial Dialer, router *Router, registry *Registry, breaker mqttbus.BreakerSettings, logger *slog.Logger, metrics *Metrics) *Manager {
	if dial == nil {
		dial = DialMQTT
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Manager{
		dial:     dial,
		router:   router,
		registry: registry,
		breaker:  breaker,
		logger:   logger,
		metrics:  metrics,
	}
}

// Connect opens the session. While a session is live further calls are
// no-ops. It does not wait for the broker.
func (m *Manager) Connect(ctx context.Context, cfg mqttbus.Config) error {
	m.mu.Lock()
	if m.transport != nil {
		m.mu.Unlock()
		m.logger.Debug("connect ignored, session already open")
		return nil
	}
	cfg = cfg.WithDefaults("router")
	t := m.dial(cfg, m.logger)
	if t == nil {
		m.mu.Unlock()
		return fmt.Errorf("dial %s: no transport", cfg.BrokerURL())
	}
	m.transport = t
	m.commands = mqttbus.NewPublisher(t, m.router.Topics().Commands, cfg.QoS, m.breaker, m.logger)
	m.status = model.Connecting
	m.mu.Unlock()

	m.logger.Info("connecting", "broker", cfg.BrokerURL(), "client_id", cfg.ClientID)
	t.Start(ctx, mqttbus.Hooks{
		OnConnect:        func() { m.onConnect(t) },
		OnConnectionLost: m.onClosed,
	})
	return nil
}

func (m *Manager) onConnect(t Transport) {
	for _, topic := range m.router.Topics().Subscriptions() {
		if err := t.Subscribe(topic, m.handle); err != nil {
			m.logger.Warn("subscribe failed", "topic", topic, "err", err)
		}
	}
	m.setStatus(model.Connected)
	m.logger.Info("router connected")
	m.emit(EventConnect)
}

func (m *Manager) onClosed(err error) {
	m.setStatus(model.Disconnected)
	m.logger.Warn("router disconnected", "err", err)
	m.emit(EventDisconnect)
}

func (m *Manager) emit(kind EventKind) {
	if err := m.registry.Publish(kind, nil); err != nil {
		m.logger.Error("publish event", "event", kind, "err", err)
	}
}

// handle serialises routing so one message finishes its fan-out before
// the next one starts.
func (m *Manager) handle(topic string, payload []byte) {
	m.inbound.Lock()
	defer m.inbound.Unlock()
	m.router.Route(topic, payload)
}

func (m *Manager) setStatus(s model.ConnectionStatus) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) Status() model.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// PublishCommand sends {target, command, params} once. Nothing is queued:
// while disconnected the command is logged and ErrNotConnected returned.
func (m *Manager) PublishCommand(target, command string, params map[string]interface{}) error {
	if target == "" || command == "" {
		m.metrics.Commands.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: target and command are required", ErrInvalidCommand)
	}

	m.mu.Lock()
	t, pub, status := m.transport, m.commands, m.status
	m.mu.Unlock()
	if t == nil || pub == nil || status != model.Connected || !t.IsConnected() {
		m.metrics.Commands.WithLabelValues("not_connected").Inc()
		m.logger.Warn("command discarded, not connected", "target", target, "command", command)
		return ErrNotConnected
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	body, err := json.Marshal(messages.Command{Target: target, Command: command, Params: params})
	if err != nil {
		m.metrics.Commands.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := pub.PublishMessage(body); err != nil {
		m.metrics.Commands.WithLabelValues("failed").Inc()
		m.logger.Warn("command publish failed", "target", target, "command", command, "err", err)
		return err
	}
	m.metrics.Commands.WithLabelValues("sent").Inc()
	m.logger.Info("command sent", "target", target, "command", command)
	return nil
}

// Close ends the session. Connect may be called again afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.commands = nil
	m.mu.Unlock()
	if t == nil {
		return
	}
	t.Close()
	m.setStatus(model.Disconnected)
}
