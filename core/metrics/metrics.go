package metrics

import (
	"time"

	"github.com/kilianp07/vehrelay/core/model"
	"github.com/kilianp07/vehrelay/core/tracker"
)

// Publish outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeTimeout        = "timeout"
	OutcomeBrokerRejected = "broker_rejected"
	OutcomeConnectFailed  = "connect_failed"
	OutcomeCanceled       = "canceled"
)

// PublishEvent describes one publish attempt.
type PublishEvent struct {
	Topic   string
	Bytes   int
	Attempt int
	Outcome string
	Latency time.Duration
	Time    time.Time
}

// MessageEvent describes one inbound message. Decoded is false when the
// message was skipped; Reason then carries the decode error kind.
type MessageEvent struct {
	Topic   string
	Decoded bool
	Reason  string
	Time    time.Time
}

// VehicleStateEvent is a decoded snapshot of a vehicle.
type VehicleStateEvent struct {
	Payload   model.Payload
	Topic     string
	Component string
	Time      time.Time
}

// TransitionEvent wraps a tracker event for recording.
type TransitionEvent struct {
	Event tracker.Event
	Topic string
}

// MetricsSink records relay activity for observability purposes.
type MetricsSink interface {
	RecordPublish(ev PublishEvent) error
	RecordMessage(ev MessageEvent) error
	RecordVehicleState(ev VehicleStateEvent) error
	RecordTransition(ev TransitionEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordPublish(PublishEvent) error           { return nil }
func (NopSink) RecordMessage(MessageEvent) error           { return nil }
func (NopSink) RecordVehicleState(VehicleStateEvent) error { return nil }
func (NopSink) RecordTransition(TransitionEvent) error     { return nil }
