package mqttbus

import (
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeMessage struct {
	topic   string
	payload []byte
	dup     bool
}

func (m fakeMessage) Duplicate() bool   { return m.dup }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{}.WithDefaults("router")
	if c.BrokerURL() != "tcp://localhost:1883" {
		t.Errorf("BrokerURL = %q", c.BrokerURL())
	}
	if !strings.HasPrefix(c.ClientID, "router-") {
		t.Errorf("ClientID = %q, want router- prefix", c.ClientID)
	}
	if c.KeepAlive != 60*time.Second || c.RetryInterval != 5*time.Second {
		t.Errorf("KeepAlive = %v, RetryInterval = %v", c.KeepAlive, c.RetryInterval)
	}

	c = Config{ClientID: "fixed", RetryInterval: time.Second}.WithDefaults("router")
	if c.ClientID != "fixed" || c.RetryInterval != time.Second {
		t.Errorf("explicit values overwritten: %+v", c)
	}
}

func TestSession_DeliverDropsRedelivery(t *testing.T) {
	s := NewSession(Config{DedupTTL: time.Minute}.WithDefaults("test"), quietLogger())

	var got []string
	h := func(topic string, payload []byte) { got = append(got, string(payload)) }

	s.deliver(fakeMessage{topic: "iot/sensors", payload: []byte("a")}, h)
	s.deliver(fakeMessage{topic: "iot/sensors", payload: []byte("a"), dup: true}, h)
	// same payload without the DUP flag is a genuine new message
	s.deliver(fakeMessage{topic: "iot/sensors", payload: []byte("a")}, h)
	s.deliver(fakeMessage{topic: "iot/sensors", payload: []byte("b"), dup: true}, h)

	want := []string{"a", "a", "b"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("delivered %v, want %v", got, want)
	}
}

func TestSession_SendWhenDisconnected(t *testing.T) {
	s := NewSession(Config{}.WithDefaults("test"), quietLogger())
	if err := s.Send("t", 0, false, []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if s.IsConnected() {
		t.Error("new session must not report connected")
	}
	s.Close() // never started: must not block
}

// stalledToken never completes.
type stalledToken struct{ done chan struct{} }

func (t stalledToken) Wait() bool                     { <-t.done; return true }
func (t stalledToken) WaitTimeout(time.Duration) bool { return false }
func (t stalledToken) Done() <-chan struct{}          { return t.done }
func (t stalledToken) Error() error                   { return nil }

// stalledClient hands out connect tokens that never complete and records
// how the session cleans up after them.
type stalledClient struct {
	mqtt.Client
	connects    int
	disconnects int
}

func (c *stalledClient) IsConnectionOpen() bool { return false }
func (c *stalledClient) Connect() mqtt.Token {
	c.connects++
	return stalledToken{done: make(chan struct{})}
}
func (c *stalledClient) Disconnect(uint) { c.disconnects++ }

func TestSession_TimedOutConnectIsAbandoned(t *testing.T) {
	s := NewSession(Config{ConnectTimeout: time.Millisecond}.WithDefaults("test"), quietLogger())
	fc := &stalledClient{}
	s.client = fc

	for i := 1; i <= 2; i++ {
		if err := s.attempt(); !errors.Is(err, ErrTimeout) {
			t.Fatalf("attempt %d: err = %v, want ErrTimeout", i, err)
		}
		if fc.disconnects != fc.connects {
			t.Errorf("attempt %d: connects=%d disconnects=%d, want every timed-out connect abandoned",
				i, fc.connects, fc.disconnects)
		}
	}
}
