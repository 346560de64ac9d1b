package metrics

import (
	"errors"
	"io"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
)

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPublish forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordPublish(ev coremetrics.PublishEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPublish(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordMessage forwards inbound message events.
func (m *MultiSink) RecordMessage(ev coremetrics.MessageEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordMessage(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordVehicleState forwards vehicle snapshots.
func (m *MultiSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordVehicleState(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordTransition forwards transition events.
func (m *MultiSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordTransition(ev); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
