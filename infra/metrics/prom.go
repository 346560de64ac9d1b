package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
)

// PromSink records relay activity in Prometheus metrics.
type PromSink struct {
	publishes   *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	bytes       prometheus.Counter
	messages    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	speed       prometheus.Gauge
	battery     prometheus.Gauge
	cruise      prometheus.Gauge
}

// NewPromSink registers relay metrics on the default Prometheus registerer.
// The HTTP exporter is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vehrelay_publish_total",
			Help: "Publish attempts by outcome",
		}, []string{"topic", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vehrelay_publish_latency_seconds",
			Help:    "Time between publish and delivery completion",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic", "outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vehrelay_publish_bytes_total",
			Help: "Bytes handed over to the broker",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vehrelay_messages_total",
			Help: "Inbound messages by decode result",
		}, []string{"topic", "decoded", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vehrelay_transitions_total",
			Help: "Tracked field transitions",
		}, []string{"field", "kind"}),
		speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehrelay_vehicle_speed",
			Help: "Last received vehicle speed",
		}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehrelay_vehicle_battery_percent",
			Help: "Last received battery level",
		}),
		cruise: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehrelay_vehicle_cruise_control",
			Help: "1 when the last snapshot reported cruise control on",
		}),
	}

	var err error
	if s.publishes, err = register(reg, s.publishes); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.bytes, err = register(reg, s.bytes); err != nil {
		return nil, err
	}
	if s.messages, err = register(reg, s.messages); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, s.transitions); err != nil {
		return nil, err
	}
	if s.speed, err = register(reg, s.speed); err != nil {
		return nil, err
	}
	if s.battery, err = register(reg, s.battery); err != nil {
		return nil, err
	}
	if s.cruise, err = register(reg, s.cruise); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordPublish counts the attempt and observes its latency.
func (s *PromSink) RecordPublish(ev coremetrics.PublishEvent) error {
	s.publishes.WithLabelValues(ev.Topic, ev.Outcome).Inc()
	s.latency.WithLabelValues(ev.Topic, ev.Outcome).Observe(ev.Latency.Seconds())
	if ev.Outcome == coremetrics.OutcomeOK {
		s.bytes.Add(float64(ev.Bytes))
	}
	return nil
}

// RecordMessage counts an inbound message.
func (s *PromSink) RecordMessage(ev coremetrics.MessageEvent) error {
	s.messages.WithLabelValues(ev.Topic, strconv.FormatBool(ev.Decoded), ev.Reason).Inc()
	return nil
}

// RecordVehicleState updates the vehicle gauges.
func (s *PromSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	s.speed.Set(ev.Payload.Speed)
	s.battery.Set(ev.Payload.Battery)
	if ev.Payload.CruiseControl {
		s.cruise.Set(1)
	} else {
		s.cruise.Set(0)
	}
	return nil
}

// RecordTransition counts a tracked field transition.
func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.transitions.WithLabelValues(ev.Event.Field, ev.Event.Kind.String()).Inc()
	return nil
}
