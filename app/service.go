package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/vehrelay/config"
	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/core/model"
	"github.com/kilianp07/vehrelay/core/scheduler"
	"github.com/kilianp07/vehrelay/core/tracker"
	"github.com/kilianp07/vehrelay/infra/logger"
	"github.com/kilianp07/vehrelay/infra/metrics"
	"github.com/kilianp07/vehrelay/infra/mqtt"
)

// Service wires the configuration, the metrics sinks and the MQTT
// publisher and subscriber.
type Service struct {
	cfg      *config.Config
	sink     coremetrics.MetricsSink
	gatherer prometheus.Gatherer
	log      logger.Logger
}

// New creates a Service from the configuration. Metrics are registered on
// the default Prometheus registry.
func New(cfg *config.Config) (*Service, error) {
	return NewWithRegistry(cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a Service registering its metrics on reg and
// exposing g on the metrics endpoint.
func NewWithRegistry(cfg *config.Config, reg prometheus.Registerer, g prometheus.Gatherer) (*Service, error) {
	sink, err := metrics.NewSink(cfg.Metrics, reg)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	return &Service{cfg: cfg, sink: sink, gatherer: g, log: logger.New("service")}, nil
}

// StartMetrics serves the Prometheus endpoint until ctx is done when it is
// enabled.
func (s *Service) StartMetrics(ctx context.Context) {
	if !s.cfg.Metrics.PrometheusEnabled {
		return
	}
	go func() {
		if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort, s.gatherer); err != nil {
			s.log.Errorf("prom server: %v", err)
		}
	}()
}

// Publisher returns a one-shot publisher for the configured topic.
func (s *Service) Publisher() *mqtt.Publisher {
	return mqtt.NewPublisher(s.cfg.MQTT(),
		mqtt.WithLogger(logger.New("publisher")),
		mqtt.WithMetrics(s.sink))
}

// RunPublisher publishes payloads from src according to sched.
func (s *Service) RunPublisher(ctx context.Context, sched scheduler.Schedule, src scheduler.Source) (scheduler.Summary, error) {
	sum, err := scheduler.Run(ctx, sched, src, s.Publisher(), logger.New("scheduler"))
	s.log.Infow("publisher finished", map[string]any{"sent": sum.Sent, "failed": sum.Failed})
	return sum, err
}

// Subscriber returns a subscriber tracking the configured fields.
func (s *Service) Subscriber() *mqtt.Subscriber {
	return mqtt.NewSubscriber(s.cfg.MQTT(),
		[]mqtt.Option{mqtt.WithLogger(logger.New("subscriber")), mqtt.WithMetrics(s.sink)},
		mqtt.WithPolicy(s.cfg.Subscribe.Policy()),
		mqtt.WithTrackedFields(s.cfg.Subscribe.Fields()...))
}

// RunSubscriber subscribes and blocks until ctx is done. onEvent, when not
// nil, receives the tracker events of the session.
func (s *Service) RunSubscriber(ctx context.Context, onMessage func(model.Payload), onEvent func(tracker.Event)) error {
	sub, err := s.Subscriber().Subscribe(ctx, onMessage)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Infof("listening on %s", s.cfg.Topic())
	events := sub.Events()
	for ev := range events {
		if onEvent != nil {
			onEvent(ev)
		}
	}
	<-sub.Done()
	sub.Cancel()
	return nil
}

// Close releases resources held by the metrics sinks.
func (s *Service) Close() error {
	if c, ok := s.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
