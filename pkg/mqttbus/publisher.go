package mqttbus

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Sender is the raw publish primitive a Publisher wraps. *Session implements it.
type Sender interface {
	Send(topic string, qos byte, retained bool, payload []byte) error
}

// IPublisher publishes to one fixed topic.
type IPublisher interface {
	PublishMessage(message interface{}) error
}

// BreakerSettings configures the publish circuit breaker.
type BreakerSettings struct {
	Failures int           // consecutive failures that open the breaker
	OpenFor  time.Duration // how long it stays open before a trial request
}

// Publisher sends to a single topic behind a circuit breaker, so a
// broker that keeps refusing publishes is not waited on every time.
type Publisher struct {
	sender   Sender
	topic    string
	qos      byte
	retained bool
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

func NewPublisher(sender Sender, topic string, qos byte, bs BreakerSettings, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if bs.Failures < 1 {
		bs.Failures = 3
	}
	if bs.OpenFor <= 0 {
		bs.OpenFor = 10 * time.Second
	}
	p := &Publisher{sender: sender, topic: topic, qos: qos, logger: logger}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "publish " + topic,
		Timeout: bs.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(bs.Failures)
		},
		IsSuccessful: func(err error) bool {
			// being offline is reported by the session, not a broker fault
			return err == nil || errors.Is(err, ErrNotConnected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("publish breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

// Retained makes the publisher set the retain flag.
func (p *Publisher) Retained() *Publisher {
	p.retained = true
	return p
}

// PublishMessage accepts a string or a []byte payload.
func (p *Publisher) PublishMessage(message interface{}) error {
	var payload []byte
	switch m := message.(type) {
	case []byte:
		payload = m
	case string:
		payload = []byte(m)
	default:
		return fmt.Errorf("invalid message format %T, expected string or []byte", message)
	}

	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.sender.Send(p.topic, p.qos, p.retained, payload)
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.logger.Debug("message published", "topic", p.topic, "bytes", len(payload))
	return nil
}

// State exposes the breaker state for health output.
func (p *Publisher) State() string { return p.breaker.State().String() }
