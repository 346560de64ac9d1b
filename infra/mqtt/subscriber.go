package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/core/model"
	coremqtt "github.com/kilianp07/vehrelay/core/mqtt"
	"github.com/kilianp07/vehrelay/core/relay"
	"github.com/kilianp07/vehrelay/core/stats"
	"github.com/kilianp07/vehrelay/core/tracker"
	"github.com/kilianp07/vehrelay/infra/logger"
	"github.com/kilianp07/vehrelay/internal/eventbus"
)

// CancelWait bounds how long Cancel waits for an in-flight message.
const CancelWait = 2 * time.Second

// Subscriber receives vehicle snapshots from the vehicle parameters topic
// and runs them through a relay.Handler.
type Subscriber struct {
	cfg    Config
	log    logger.Logger
	sink   coremetrics.MetricsSink
	fields []tracker.Field
	policy tracker.Policy
}

// SubscriberOption customizes change tracking.
type SubscriberOption func(*Subscriber)

// WithTrackedFields selects the boolean fields watched for transitions.
// CruiseControl is watched when no field is given.
func WithTrackedFields(fields ...tracker.Field) SubscriberOption {
	return func(s *Subscriber) { s.fields = fields }
}

// WithPolicy selects the first observation policy of the trackers.
func WithPolicy(p tracker.Policy) SubscriberOption {
	return func(s *Subscriber) { s.policy = p }
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(cfg Config, opts []Option, subOpts ...SubscriberOption) *Subscriber {
	o := buildOptions("subscriber", opts)
	s := &Subscriber{cfg: cfg.withDefaults(), log: o.log, sink: o.sink}
	for _, opt := range subOpts {
		opt(s)
	}
	if len(s.fields) == 0 {
		s.fields = []tracker.Field{tracker.CruiseControl}
	}
	return s
}

type inbound struct {
	topic   string
	payload []byte
}

// Subscription is a running subscription session. It owns the connection,
// the trackers and the event bus of the session.
type Subscription struct {
	cli     pahoClient
	handler *relay.Handler
	bus     *eventbus.TypedBus[tracker.Event]
	events  <-chan tracker.Event
	log     logger.Logger

	queue   chan inbound
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	inLoop  atomic.Bool
}

// Subscribe connects to the broker, subscribes to the configured topic and
// starts the receive loop. onMessage is invoked synchronously, in delivery
// order, for every message that decodes. The subscription ends when Cancel
// is called or ctx is done. The initial connection is retried with an
// exponential backoff within Config.ConnectTimeout; later connection losses
// are handled by automatic reconnection.
func (s *Subscriber) Subscribe(ctx context.Context, onMessage func(model.Payload)) (*Subscription, error) {
	trackers := make([]*tracker.Tracker, 0, len(s.fields))
	for _, f := range s.fields {
		trackers = append(trackers, tracker.New(f, s.policy))
	}
	bus := eventbus.NewTypedWithBuffer[tracker.Event](s.cfg.QueueSize)
	sub := &Subscription{
		bus:     bus,
		log:     s.log,
		queue:   make(chan inbound, s.cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	sub.handler = relay.NewHandler(onMessage, trackers, bus, s.sink, stats.NewSession(0), s.log)
	// registered before the loop starts so that no event of the session is
	// published to an empty bus
	sub.events = bus.Subscribe()

	subscribed := make(chan error, 1)
	opts := NewClientOptions(s.cfg, "sub")
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(s.cfg.MaxReconnectInterval)
	opts.SetCleanSession(true)
	opts.OnConnect = func(c paho.Client) {
		err := waitToken(context.Background(), c.Subscribe(s.cfg.Topic, s.cfg.QoS, sub.enqueue), s.cfg.ConnectTimeout)
		if err != nil {
			s.log.Errorf("subscribe %s: %v", s.cfg.Topic, err)
		} else {
			s.log.Infof("subscribed to topic: %s", s.cfg.Topic)
		}
		select {
		case subscribed <- err:
		default:
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.log.Warnf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		s.log.Warnf("reconnecting to %s", s.cfg.BrokerURL())
	}
	cli := newMQTTClient(opts)
	sub.cli = cli

	if err := s.connectWithBackoff(ctx, cli); err != nil {
		cli.Disconnect(0)
		return nil, err
	}
	select {
	case err := <-subscribed:
		if err != nil {
			cli.Disconnect(disconnectQuiesce)
			return nil, &coremqtt.ConnectError{Kind: coremqtt.SubscribeRejected, Broker: s.cfg.BrokerURL(), Err: err}
		}
	case <-time.After(s.cfg.ConnectTimeout):
		cli.Disconnect(disconnectQuiesce)
		return nil, &coremqtt.ConnectError{Kind: coremqtt.SubscribeRejected, Broker: s.cfg.BrokerURL(), Err: errTokenTimeout}
	case <-ctx.Done():
		cli.Disconnect(0)
		return nil, &coremqtt.ConnectError{Kind: coremqtt.Unreachable, Broker: s.cfg.BrokerURL(), Err: ctx.Err()}
	}

	go sub.loop()
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (s *Subscriber) connectWithBackoff(ctx context.Context, cli pahoClient) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = s.cfg.ConnectTimeout
	b.Reset()
	attempt := 0
	op := func() error {
		attempt++
		err := connect(ctx, cli, s.cfg)
		if err == nil {
			return nil
		}
		var ce *coremqtt.ConnectError
		if errors.As(err, &ce) && ce.Kind == coremqtt.AuthRejected {
			return backoff.Permanent(err)
		}
		s.log.Warnf("connect attempt %d to %s failed: %v", attempt, s.cfg.BrokerURL(), err)
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	var ce *coremqtt.ConnectError
	if errors.As(err, &ce) {
		return ce
	}
	return &coremqtt.ConnectError{Kind: coremqtt.Unreachable, Broker: s.cfg.BrokerURL(), Err: err}
}

// enqueue hands a message from the paho router to the receive loop. It
// blocks while the queue is full so that delivery order is preserved.
func (sub *Subscription) enqueue(_ paho.Client, msg paho.Message) {
	select {
	case sub.queue <- inbound{topic: msg.Topic(), payload: msg.Payload()}:
	case <-sub.done:
	}
}

func (sub *Subscription) loop() {
	defer close(sub.stopped)
	defer sub.bus.Close()
	for {
		select {
		case <-sub.done:
			return
		case m := <-sub.queue:
			select {
			case <-sub.done:
				return
			default:
			}
			sub.inLoop.Store(true)
			_ = sub.handler.Handle(m.topic, m.payload)
			sub.inLoop.Store(false)
		}
	}
}

// Cancel stops the receive loop and releases the connection. It is safe to
// call from any goroutine, from within onMessage and more than once. When the
// loop is idle Cancel waits for it to exit, at most CancelWait. A callback
// already running may complete; no callback starts after Cancel returns.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		close(sub.done)
		if !sub.inLoop.Load() {
			select {
			case <-sub.stopped:
			case <-time.After(CancelWait):
				sub.log.Warnf("receive loop still busy after %s", CancelWait)
			}
		}
		sub.cli.Disconnect(disconnectQuiesce)
		sub.log.Infow("subscription closed", sub.Stats().Fields())
	})
}

// Done is closed when the receive loop has exited.
func (sub *Subscription) Done() <-chan struct{} { return sub.stopped }

// Events returns the channel receiving the tracker events of the session,
// starting with the first message. Every call returns the same channel. It
// holds up to Config.QueueSize events; events that do not fit are dropped
// and counted in Stats. The channel is closed when the subscription ends.
func (sub *Subscription) Events() <-chan tracker.Event { return sub.events }

// Stats returns the statistics of the session so far.
func (sub *Subscription) Stats() stats.Summary {
	sum := sub.handler.Session().Summary()
	sum.DroppedEvents = sub.bus.Dropped()
	return sum
}
