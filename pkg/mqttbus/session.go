package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/smarthome_router/pkg/dedup"
)

var (
	ErrNotConnected = errors.New("mqtt: not connected")
	ErrTimeout      = errors.New("mqtt: operation timed out")
)

// MessageHandler receives every message delivered on a subscription.
type MessageHandler func(topic string, payload []byte)

// Hooks are called from the session goroutine, never concurrently with each other.
type Hooks struct {
	OnConnect        func()
	OnConnectionLost func(err error)
}

// Session owns one paho client and keeps it connected. paho's own
// reconnect is disabled: its backoff doubles, ours stays constant.
type Session struct {
	cfg    Config
	client mqtt.Client
	logger *slog.Logger
	dedup  *dedup.Deduper

	hooks     Hooks
	lost      chan error
	connected atomic.Bool
	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewSession(cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:    cfg,
		logger: logger,
		lost:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	if cfg.DedupTTL > 0 {
		s.dedup = dedup.New(cfg.DedupTTL, 0)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true) // one message at a time, in arrival order
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case s.lost <- err:
		default:
		}
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start launches the connect loop. It returns immediately; hooks report
// progress. Calling Start twice has no effect.
func (s *Session) Start(ctx context.Context, hooks Hooks) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.hooks = hooks
		go s.run(ctx)
	})
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		if err := s.connect(ctx); err != nil {
			return
		}
		s.connected.Store(true)
		s.logger.Info("mqtt connected", "broker", s.cfg.BrokerURL(), "client_id", s.cfg.ClientID)
		if s.hooks.OnConnect != nil {
			s.hooks.OnConnect()
		}

		select {
		case <-ctx.Done():
			s.connected.Store(false)
			s.client.Disconnect(250)
			s.logger.Info("mqtt connection closed")
			if s.hooks.OnConnectionLost != nil {
				s.hooks.OnConnectionLost(ctx.Err())
			}
			return
		case err := <-s.lost:
			s.connected.Store(false)
			s.logger.Warn("mqtt connection lost", "err", err)
			if s.hooks.OnConnectionLost != nil {
				s.hooks.OnConnectionLost(err)
			}
		}
	}
}

// connect retries at a constant interval until the broker accepts us or
// ctx is cancelled.
func (s *Session) connect(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.RetryInterval), ctx)
	return backoff.RetryNotify(s.attempt, bo, func(err error, next time.Duration) {
		s.logger.Warn("mqtt connect failed, retrying",
			"broker", s.cfg.BrokerURL(), "err", err, "retry_in", next)
	})
}

// attempt makes one connect try. A try that times out is abandoned with
// Disconnect so it cannot overlap the next one.
func (s *Session) attempt() error {
	if s.client.IsConnectionOpen() {
		return nil
	}
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		s.client.Disconnect(0)
		return fmt.Errorf("connect %s: %w", s.cfg.BrokerURL(), ErrTimeout)
	}
	return token.Error()
}

// Subscribe registers handler for topic on the live connection. Clean
// sessions lose subscriptions on disconnect, so callers subscribe again
// from OnConnect.
func (s *Session) Subscribe(topic string, handler MessageHandler) error {
	token := s.client.Subscribe(topic, s.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		s.deliver(m, handler)
	})
	if !token.WaitTimeout(s.cfg.OperationTimeout) {
		return fmt.Errorf("subscribe %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// deliver drops a message only when the broker flagged it as a redelivery
// and we already saw the same payload.
func (s *Session) deliver(m mqtt.Message, handler MessageHandler) {
	if s.dedup != nil {
		first := s.dedup.ShouldProcess(dedup.Key(m.Payload()))
		if !first && m.Duplicate() {
			s.logger.Debug("mqtt redelivery dropped", "topic", m.Topic())
			return
		}
	}
	handler(m.Topic(), m.Payload())
}

// Send publishes payload once. It fails fast when the session is down.
func (s *Session) Send(topic string, qos byte, retained bool, payload []byte) error {
	if !s.connected.Load() || !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(s.cfg.OperationTimeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (s *Session) IsConnected() bool { return s.connected.Load() }

// Close stops the connect loop and disconnects.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
