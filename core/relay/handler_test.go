package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/core/model"
	"github.com/kilianp07/vehrelay/core/tracker"
	"github.com/kilianp07/vehrelay/infra/logger"
)

type recordSink struct {
	mu          sync.Mutex
	messages    []coremetrics.MessageEvent
	states      []coremetrics.VehicleStateEvent
	transitions []coremetrics.TransitionEvent
}

func (r *recordSink) RecordPublish(coremetrics.PublishEvent) error { return nil }
func (r *recordSink) RecordMessage(ev coremetrics.MessageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, ev)
	return nil
}
func (r *recordSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, ev)
	return nil
}
func (r *recordSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, ev)
	return nil
}

type eventRecorder struct{ events []tracker.Event }

func (e *eventRecorder) Publish(ev tracker.Event) { e.events = append(e.events, ev) }

func TestHandlerSkipsMalformedMessage(t *testing.T) {
	var got []model.Payload
	sink := &recordSink{}
	h := NewHandler(func(p model.Payload) { got = append(got, p) },
		[]*tracker.Tracker{tracker.New(tracker.CruiseControl, tracker.Suppress)},
		nil, sink, nil, logger.NopLogger{})

	err := h.Handle("veh/params", []byte("not json at all"))
	require.Error(t, err)
	require.NoError(t, h.Handle("veh/params", []byte(`{"Speed": 12}`)))

	require.Len(t, got, 1)
	assert.Equal(t, 12.0, got[0].Speed)
	require.Len(t, sink.messages, 2)
	assert.False(t, sink.messages[0].Decoded)
	assert.Equal(t, "not_json", sink.messages[0].Reason)
	assert.True(t, sink.messages[1].Decoded)
	assert.Len(t, sink.states, 1)

	sum := h.Session().Summary()
	assert.Equal(t, 1, sum.Received)
	assert.Equal(t, 1, sum.Skipped)
}

func TestHandlerEmitsTransitions(t *testing.T) {
	events := &eventRecorder{}
	sink := &recordSink{}
	h := NewHandler(nil,
		[]*tracker.Tracker{tracker.New(tracker.CruiseControl, tracker.Suppress)},
		events, sink, nil, logger.NopLogger{})

	msgs := []string{
		`{"CruiseControl": false, "Speed": 40}`,
		`{"CruiseControl": true, "Speed": 100}`,
		`{"CruiseControl": true, "Speed": 101}`,
		`{"CruiseControl": false, "Speed": 60}`,
	}
	for _, m := range msgs {
		require.NoError(t, h.Handle("veh/params", []byte(m)))
	}
	require.Len(t, events.events, 2)
	assert.Equal(t, tracker.Activated, events.events[0].Kind)
	assert.Equal(t, 100.0, events.events[0].Speed)
	assert.Equal(t, tracker.Deactivated, events.events[1].Kind)
	assert.Len(t, sink.transitions, 2)
	assert.Equal(t, 2, h.Session().Summary().Transitions)
}

func TestHandlerCallbackAfterTracker(t *testing.T) {
	tr := tracker.New(tracker.CruiseControl, tracker.Suppress)
	var seen []tracker.State
	h := NewHandler(func(model.Payload) { seen = append(seen, tr.State()) },
		[]*tracker.Tracker{tr}, nil, nil, nil, logger.NopLogger{})
	require.NoError(t, h.Handle("t", []byte(`{"CruiseControl": true}`)))
	assert.Equal(t, []tracker.State{tracker.StateTrue}, seen)
}

func TestHandlerWrongTypeReason(t *testing.T) {
	sink := &recordSink{}
	h := NewHandler(nil, nil, nil, sink, nil, logger.NopLogger{})
	require.Error(t, h.Handle("t", []byte(`{"Speed": "fast"}`)))
	require.Len(t, sink.messages, 1)
	assert.Equal(t, "wrong_type", sink.messages[0].Reason)
}
