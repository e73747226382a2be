package mqttbus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Config describes one broker session. Retry is a constant interval: the
// session never gives up reconnecting while its context is alive.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	KeepAlive        time.Duration
	RetryInterval    time.Duration
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration // subscribe / publish token wait
	QoS              byte

	// DedupTTL is how long payload hashes are remembered to drop broker
	// redeliveries. Zero disables the check.
	DedupTTL time.Duration
}

func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// WithDefaults fills zero values. A missing client id becomes prefix-<uuid>
// so two instances never kick each other off the broker.
func (c Config) WithDefaults(prefix string) Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 1883
	}
	if c.ClientID == "" {
		c.ClientID = prefix + "-" + uuid.NewString()[:8]
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = 5 * time.Second
	}
	if c.QoS > 2 {
		c.QoS = 1
	}
	return c
}
