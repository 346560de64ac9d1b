package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	coremqtt "github.com/kilianp07/vehrelay/core/mqtt"
	"github.com/kilianp07/vehrelay/infra/logger"
)

const (
	defaultKeepalive      = 60 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultBackoff        = 100 * time.Millisecond
	defaultConnectTimeout = 10 * time.Second
	defaultMaxReconnect   = 30 * time.Second
	defaultQueueSize      = 64
	disconnectQuiesce     = 250
)

// Config defines the connection parameters shared by the publisher and the
// subscriber.
type Config struct {
	Broker    string
	Port      int
	Keepalive time.Duration // zero selects the default, negative disables
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	Topic     string

	PublishTimeout time.Duration
	MaxRetries     int
	Backoff        time.Duration

	ConnectTimeout       time.Duration
	MaxReconnectInterval time.Duration
	QueueSize            int
}

func (c Config) withDefaults() Config {
	if c.Keepalive == 0 {
		c.Keepalive = defaultKeepalive
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.MaxReconnectInterval <= 0 {
		c.MaxReconnectInterval = defaultMaxReconnect
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

// BrokerURL returns the paho server URL. Broker may carry a scheme
// ("ssl://host"); tcp is assumed otherwise.
func (c Config) BrokerURL() string {
	scheme, host := "tcp", c.Broker
	if i := strings.Index(host, "://"); i >= 0 {
		scheme, host = host[:i], host[i+3:]
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// pahoClient is the subset of paho.Client used by the relay.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewClientOptions builds paho client options from Config. role is used to
// derive a client identifier when none is configured.
func NewClientOptions(cfg Config, role string) *paho.ClientOptions {
	cfg = cfg.withDefaults()
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("vehrelay-%s-%s", role, uuid.NewString())
	}
	keepalive := cfg.Keepalive
	if keepalive < 0 {
		keepalive = 0
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(clientID).
		SetKeepAlive(keepalive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOrderMatters(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// Option customizes a Publisher or Subscriber.
type Option func(*options)

type options struct {
	log  logger.Logger
	sink coremetrics.MetricsSink
}

// WithLogger overrides the component logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records publish and message events in sink.
func WithMetrics(sink coremetrics.MetricsSink) Option {
	return func(o *options) { o.sink = sink }
}

func buildOptions(component string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.New(component)
	}
	if o.sink == nil {
		o.sink = coremetrics.NopSink{}
	}
	return o
}

var errTokenTimeout = errors.New("token timeout")

// waitToken blocks until the token completes, the timeout expires or ctx is
// done.
func waitToken(ctx context.Context, t paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.Done():
		return t.Error()
	case <-timer.C:
		return errTokenTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connect performs one connection attempt and classifies its failure.
func connect(ctx context.Context, cli pahoClient, cfg Config) error {
	err := waitToken(ctx, cli.Connect(), cfg.ConnectTimeout)
	if err == nil {
		return nil
	}
	return classifyConnectErr(cfg.BrokerURL(), err)
}

func classifyConnectErr(broker string, err error) *coremqtt.ConnectError {
	kind := coremqtt.Unreachable
	if errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) || errors.Is(err, packets.ErrorRefusedNotAuthorised) {
		kind = coremqtt.AuthRejected
	}
	return &coremqtt.ConnectError{Kind: kind, Broker: broker, Err: err}
}
