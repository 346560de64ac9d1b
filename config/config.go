package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/core/tracker"
	"github.com/kilianp07/vehrelay/infra/mqtt"
)

// VehicleParametersTopic is the logical name of the topic carrying vehicle
// snapshots.
const VehicleParametersTopic = "vehicle_parameters"

// defaultKeepalive applies when the keepalive key is absent.
const defaultKeepalive = 60

// Config is the relay configuration. It is immutable once loaded.
type Config struct {
	Broker    string            `json:"broker"`
	Port      int               `json:"port"`
	Keepalive int               `json:"keepalive"` // seconds, 0 disables keepalive
	Topics    map[string]string `json:"topics"`
	ClientID  string            `json:"client_id"`
	Username  string            `json:"username"`
	Password  string            `json:"password"`
	QoS       int               `json:"qos"`

	Publish   PublishConfig   `json:"publish"`
	Subscribe SubscribeConfig `json:"subscribe"`
	Metrics   metrics.Config  `json:"metrics"`
}

// PublishConfig tunes the publisher.
type PublishConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
	MaxRetries     int `json:"max_retries"`
	BackoffMS      int `json:"backoff_ms"`
}

// SetDefaults applies sane defaults.
func (c *PublishConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 5
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks value ranges.
func (c PublishConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return malformed("publish.timeout_seconds", fmt.Errorf("must not be negative"))
	}
	if c.MaxRetries < 0 {
		return malformed("publish.max_retries", fmt.Errorf("must not be negative"))
	}
	if c.BackoffMS < 0 {
		return malformed("publish.backoff_ms", fmt.Errorf("must not be negative"))
	}
	return nil
}

// SubscribeConfig tunes the subscriber.
type SubscribeConfig struct {
	// FirstObservation selects how the first message of a session is
	// handled by the trackers: "suppress" or "unknown_is_false".
	FirstObservation      string   `json:"first_observation"`
	ConnectTimeoutSeconds int      `json:"connect_timeout_seconds"`
	MaxReconnectSeconds   int      `json:"max_reconnect_seconds"`
	QueueSize             int      `json:"queue_size"`
	Watch                 []string `json:"watch"`
}

// SetDefaults applies sane defaults.
func (c *SubscribeConfig) SetDefaults() {
	if c.FirstObservation == "" {
		c.FirstObservation = tracker.Suppress.String()
	}
	if c.ConnectTimeoutSeconds == 0 {
		c.ConnectTimeoutSeconds = 10
	}
	if c.MaxReconnectSeconds == 0 {
		c.MaxReconnectSeconds = 30
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if len(c.Watch) == 0 {
		c.Watch = []string{tracker.CruiseControl.Name}
	}
}

// Validate checks value ranges and names.
func (c SubscribeConfig) Validate() error {
	if _, err := tracker.ParsePolicy(c.FirstObservation); err != nil {
		return malformed("subscribe.first_observation", err)
	}
	if c.ConnectTimeoutSeconds < 0 {
		return malformed("subscribe.connect_timeout_seconds", fmt.Errorf("must not be negative"))
	}
	if c.MaxReconnectSeconds < 0 {
		return malformed("subscribe.max_reconnect_seconds", fmt.Errorf("must not be negative"))
	}
	if c.QueueSize < 0 {
		return malformed("subscribe.queue_size", fmt.Errorf("must not be negative"))
	}
	for _, name := range c.Watch {
		if _, err := tracker.LookupField(name); err != nil {
			return malformed("subscribe.watch", err)
		}
	}
	return nil
}

// Policy returns the parsed first observation policy.
func (c SubscribeConfig) Policy() tracker.Policy {
	p, _ := tracker.ParsePolicy(c.FirstObservation)
	return p
}

// Fields returns the tracked fields.
func (c SubscribeConfig) Fields() []tracker.Field {
	fields := make([]tracker.Field, 0, len(c.Watch))
	for _, name := range c.Watch {
		if f, err := tracker.LookupField(name); err == nil {
			fields = append(fields, f)
		}
	}
	return fields
}

// Load reads the configuration file at path. The format is selected by the
// extension (.json, .yaml, .yml). Environment variables prefixed with K_
// override file values, "__" separating nested keys
// (K_SUBSCRIBE__QUEUE_SIZE=128).
func Load(path string) (*Config, error) {
	parser, err := parserFor(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, err
	}
	return load(file.Provider(path), parser)
}

// LoadBytes parses an in-memory configuration in the given format ("json",
// "yaml" or "yml"), applies environment overrides, defaults and validation.
func LoadBytes(data []byte, format string) (*Config, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	return load(bytesProvider(data), parser)
}

func parserFor(format string) (koanf.Parser, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Parser(), nil
	case "json":
		return json.Parser(), nil
	default:
		return nil, malformed("", fmt.Errorf("unsupported config format: %q", format))
	}
}

func load(p koanf.Provider, parser koanf.Parser) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(p, parser); err != nil {
		return nil, malformed("", err)
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, malformed("", err)
	}

	for _, key := range []string{"broker", "port", "topics." + VehicleParametersTopic} {
		if !k.Exists(key) {
			return nil, missing(key)
		}
	}

	var cfg Config
	if !k.Exists("keepalive") {
		cfg.Keepalive = defaultKeepalive
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, malformed("", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Publish.SetDefaults()
	c.Subscribe.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate checks mandatory fields and value ranges.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Broker) == "" {
		return missing("broker")
	}
	if c.Port < 1 || c.Port > 65535 {
		return malformed("port", fmt.Errorf("%d outside 1..65535", c.Port))
	}
	if c.Keepalive < 0 {
		return malformed("keepalive", fmt.Errorf("must not be negative"))
	}
	if c.Topic() == "" {
		return missing("topics." + VehicleParametersTopic)
	}
	if c.QoS < 0 || c.QoS > 2 {
		return malformed("qos", fmt.Errorf("%d outside 0..2", c.QoS))
	}
	if err := c.Publish.Validate(); err != nil {
		return err
	}
	return c.Subscribe.Validate()
}

// Topic returns the vehicle parameters topic.
func (c Config) Topic() string {
	return c.Topics[VehicleParametersTopic]
}

// MQTT returns the connection parameters for the publisher and subscriber.
func (c Config) MQTT() mqtt.Config {
	keepalive := time.Duration(c.Keepalive) * time.Second
	if c.Keepalive == 0 {
		keepalive = -1
	}
	return mqtt.Config{
		Broker:               c.Broker,
		Port:                 c.Port,
		Keepalive:            keepalive,
		ClientID:             c.ClientID,
		Username:             c.Username,
		Password:             c.Password,
		QoS:                  byte(c.QoS),
		Topic:                c.Topic(),
		PublishTimeout:       time.Duration(c.Publish.TimeoutSeconds) * time.Second,
		MaxRetries:           c.Publish.MaxRetries,
		Backoff:              time.Duration(c.Publish.BackoffMS) * time.Millisecond,
		ConnectTimeout:       time.Duration(c.Subscribe.ConnectTimeoutSeconds) * time.Second,
		MaxReconnectInterval: time.Duration(c.Subscribe.MaxReconnectSeconds) * time.Second,
		QueueSize:            c.Subscribe.QueueSize,
	}
}

// bytesProvider feeds an in-memory document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("bytes provider does not support Read")
}
