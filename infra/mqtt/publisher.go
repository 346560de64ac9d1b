package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/core/model"
	coremqtt "github.com/kilianp07/vehrelay/core/mqtt"
	"github.com/kilianp07/vehrelay/infra/logger"
)

// Publisher sends vehicle snapshots to the vehicle parameters topic. Each
// Publish call opens its own connection and releases it before returning.
type Publisher struct {
	cfg  Config
	log  logger.Logger
	sink coremetrics.MetricsSink
	now  func() time.Time
}

var _ coremqtt.PayloadPublisher = (*Publisher)(nil)

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config, opts ...Option) *Publisher {
	o := buildOptions("publisher", opts)
	return &Publisher{cfg: cfg.withDefaults(), log: o.log, sink: o.sink, now: time.Now}
}

// Publish connects to the broker, publishes the encoded payload and waits for
// the delivery token to complete within the publish timeout. The connection
// is closed on every path.
func (p *Publisher) Publish(ctx context.Context, payload model.Payload) (coremqtt.Receipt, error) {
	data, err := model.Encode(payload)
	if err != nil {
		return coremqtt.Receipt{}, fmt.Errorf("encode payload: %w", err)
	}

	opts := NewClientOptions(p.cfg, "pub")
	opts.SetAutoReconnect(false)
	clientID := opts.ClientID
	cli := newMQTTClient(opts)
	defer cli.Disconnect(disconnectQuiesce)

	start := p.now()
	if err := connect(ctx, cli, p.cfg); err != nil {
		p.recordPublish(len(data), 0, coremetrics.OutcomeConnectFailed, p.now().Sub(start))
		return coremqtt.Receipt{}, err
	}
	p.log.Debugf("connected to %s as %s", p.cfg.BrokerURL(), clientID)

	var pubErr *coremqtt.PublishError
	attempts := 0
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		attempts++
		attemptStart := p.now()
		token := cli.Publish(p.cfg.Topic, p.cfg.QoS, false, data)
		pubErr = p.classify(waitToken(ctx, token, p.cfg.PublishTimeout))
		latency := p.now().Sub(attemptStart)
		if pubErr == nil {
			p.recordPublish(len(data), attempts, coremetrics.OutcomeOK, latency)
			break
		}
		p.recordPublish(len(data), attempts, outcomeOf(pubErr), latency)
		p.log.Errorf("publish attempt %d to %s failed: %v", attempts, p.cfg.Topic, pubErr)
		if pubErr.Kind != coremqtt.BrokerRejected || attempt == p.cfg.MaxRetries {
			break
		}
		if err := sleepCtx(ctx, p.cfg.Backoff*time.Duration(1<<attempt)); err != nil {
			pubErr = &coremqtt.PublishError{Kind: coremqtt.Canceled, Topic: p.cfg.Topic, Err: err}
			break
		}
	}
	if pubErr != nil {
		return coremqtt.Receipt{}, pubErr
	}

	rec := coremqtt.Receipt{
		Topic:       p.cfg.Topic,
		ClientID:    clientID,
		Bytes:       len(data),
		Attempts:    attempts,
		PublishedAt: p.now(),
		Latency:     p.now().Sub(start),
	}
	p.log.Infof("published to topic %s: %s", p.cfg.Topic, data)
	return rec, nil
}

func (p *Publisher) classify(err error) *coremqtt.PublishError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errTokenTimeout), errors.Is(err, context.DeadlineExceeded):
		return &coremqtt.PublishError{Kind: coremqtt.Timeout, Topic: p.cfg.Topic, Err: err}
	case errors.Is(err, context.Canceled):
		return &coremqtt.PublishError{Kind: coremqtt.Canceled, Topic: p.cfg.Topic, Err: err}
	default:
		return &coremqtt.PublishError{Kind: coremqtt.BrokerRejected, Topic: p.cfg.Topic, Err: err}
	}
}

func outcomeOf(err *coremqtt.PublishError) string {
	switch err.Kind {
	case coremqtt.BrokerRejected:
		return coremetrics.OutcomeBrokerRejected
	case coremqtt.Canceled:
		return coremetrics.OutcomeCanceled
	default:
		return coremetrics.OutcomeTimeout
	}
}

func (p *Publisher) recordPublish(size, attempt int, outcome string, latency time.Duration) {
	err := p.sink.RecordPublish(coremetrics.PublishEvent{
		Topic:   p.cfg.Topic,
		Bytes:   size,
		Attempt: attempt,
		Outcome: outcome,
		Latency: latency,
		Time:    p.now(),
	})
	if err != nil {
		p.log.Errorf("metrics sink: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
