// Package config loads the router settings: an optional YAML file first,
// then environment variables, then defaults for whatever is still unset.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/smarthome_router/internal/services/telemetry"
	"github.com/LeonardoBeccarini/smarthome_router/pkg/mqttbus"
)

type MQTT struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	ClientID      string        `yaml:"client_id"`
	KeepAlive     time.Duration `yaml:"keep_alive"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	QoS           int           `yaml:"qos"`
	DedupTTL      time.Duration `yaml:"dedup_ttl"`
}

type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Enabled is true when a URL is configured; the historian is optional.
func (i Influx) Enabled() bool { return i.URL != "" }

type Liveness struct {
	Threshold time.Duration `yaml:"threshold"`
	Tick      time.Duration `yaml:"tick"`
}

type Breaker struct {
	Failures int           `yaml:"failures"`
	OpenFor  time.Duration `yaml:"open_for"`
}

type Settings struct {
	MQTT           MQTT             `yaml:"mqtt"`
	Topics         telemetry.Topics `yaml:"topics"`
	Influx         Influx           `yaml:"influx"`
	Liveness       Liveness         `yaml:"liveness"`
	Breaker        Breaker          `yaml:"breaker"`
	HTTPPort       int              `yaml:"http_port"`
	GRPCPort       int              `yaml:"grpc_port"`
	LogLevel       string           `yaml:"log_level"`
	ReadinessGrace time.Duration    `yaml:"readiness_grace"`
}

// Defaults returns the settings used when nothing else is given.
func Defaults() Settings {
	return Settings{
		MQTT: MQTT{
			Host:          "localhost",
			Port:          1883,
			KeepAlive:     60 * time.Second,
			RetryInterval: 5 * time.Second,
			QoS:           1,
			DedupTTL:      2 * time.Minute,
		},
		Topics: telemetry.DefaultTopics(),
		Influx: Influx{Org: "smarthome", Bucket: "iot"},
		Liveness: Liveness{
			Threshold: telemetry.DefaultLivenessThreshold,
			Tick:      telemetry.DefaultTickInterval,
		},
		Breaker:        Breaker{Failures: 3, OpenFor: 10 * time.Second},
		HTTPPort:       8080,
		GRPCPort:       9090,
		LogLevel:       "info",
		ReadinessGrace: 30 * time.Second,
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return s, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := s.applyEnv(); err != nil {
		return s, err
	}
	s.Topics = s.Topics.WithDefaults()
	return s, s.Validate()
}

func envStr(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func (s *Settings) applyEnv() error {
	envStr("MQTT_HOST", &s.MQTT.Host)
	envStr("MQTT_USER", &s.MQTT.User)
	envStr("MQTT_PASSWORD", &s.MQTT.Password)
	envStr("MQTT_CLIENT_ID", &s.MQTT.ClientID)
	envStr("INFLUX_URL", &s.Influx.URL)
	envStr("INFLUX_TOKEN", &s.Influx.Token)
	envStr("INFLUX_ORG", &s.Influx.Org)
	envStr("INFLUX_BUCKET", &s.Influx.Bucket)
	envStr("LOG_LEVEL", &s.LogLevel)

	return errors.Join(
		envInt("MQTT_PORT", &s.MQTT.Port),
		envInt("HTTP_PORT", &s.HTTPPort),
		envInt("GRPC_PORT", &s.GRPCPort),
		envDuration("LIVENESS_THRESHOLD", &s.Liveness.Threshold),
		envDuration("LIVENESS_TICK", &s.Liveness.Tick),
	)
}

func validPort(p int) bool { return p > 0 && p < 65536 }

// Validate reports every problem at once.
func (s Settings) Validate() error {
	var errs []error
	if s.MQTT.Host == "" {
		errs = append(errs, errors.New("mqtt.host is empty"))
	}
	if !validPort(s.MQTT.Port) {
		errs = append(errs, fmt.Errorf("mqtt.port %d out of range", s.MQTT.Port))
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", s.MQTT.QoS))
	}
	if s.MQTT.RetryInterval <= 0 {
		errs = append(errs, errors.New("mqtt.retry_interval must be positive"))
	}
	if !validPort(s.HTTPPort) {
		errs = append(errs, fmt.Errorf("http_port %d out of range", s.HTTPPort))
	}
	if !validPort(s.GRPCPort) {
		errs = append(errs, fmt.Errorf("grpc_port %d out of range", s.GRPCPort))
	}
	if s.Liveness.Threshold <= 0 || s.Liveness.Tick <= 0 {
		errs = append(errs, errors.New("liveness threshold and tick must be positive"))
	} else if s.Liveness.Tick > s.Liveness.Threshold {
		errs = append(errs, fmt.Errorf("liveness tick %s exceeds threshold %s", s.Liveness.Tick, s.Liveness.Threshold))
	}
	if _, err := s.Level(); err != nil {
		errs = append(errs, err)
	}
	seen := map[string]bool{}
	for _, t := range append(s.Topics.Subscriptions(), s.Topics.Commands) {
		if t == "" {
			errs = append(errs, errors.New("topics: empty topic"))
			continue
		}
		if seen[t] {
			errs = append(errs, fmt.Errorf("topics: %q used twice", t))
		}
		seen[t] = true
	}
	return errors.Join(errs...)
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (s Settings) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Bus converts the MQTT section for the transport.
func (s Settings) Bus() mqttbus.Config {
	return mqttbus.Config{
		Host:          s.MQTT.Host,
		Port:          s.MQTT.Port,
		User:          s.MQTT.User,
		Password:      s.MQTT.Password,
		ClientID:      s.MQTT.ClientID,
		KeepAlive:     s.MQTT.KeepAlive,
		RetryInterval: s.MQTT.RetryInterval,
		QoS:           byte(s.MQTT.QoS),
		DedupTTL:      s.MQTT.DedupTTL,
	}
}

func (s Settings) BreakerSettings() mqttbus.BreakerSettings {
	return mqttbus.BreakerSettings{Failures: s.Breaker.Failures, OpenFor: s.Breaker.OpenFor}
}
