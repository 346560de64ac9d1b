// Package relay turns raw vehicle-parameter messages into payloads, derived
// tracker events and user callbacks. It is transport agnostic: the MQTT
// subscriber feeds it one message at a time.
package relay

import (
	"errors"
	"time"

	"github.com/kilianp07/vehrelay/core/logger"
	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/core/model"
	"github.com/kilianp07/vehrelay/core/stats"
	"github.com/kilianp07/vehrelay/core/tracker"
)

// EventPublisher receives the derived tracker events.
type EventPublisher interface {
	Publish(tracker.Event)
}

// Handler processes inbound messages sequentially. It must not be called
// concurrently.
type Handler struct {
	trackers  []*tracker.Tracker
	onMessage func(model.Payload)
	events    EventPublisher
	sink      coremetrics.MetricsSink
	log       logger.Logger
	session   *stats.Session
	now       func() time.Time
}

// NewHandler wires a handler. Nil events, sink or session are replaced by
// no-op implementations; log must not be nil.
func NewHandler(onMessage func(model.Payload), trackers []*tracker.Tracker, events EventPublisher, sink coremetrics.MetricsSink, session *stats.Session, log logger.Logger) *Handler {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	if session == nil {
		session = stats.NewSession(0)
	}
	return &Handler{
		trackers:  trackers,
		onMessage: onMessage,
		events:    events,
		sink:      sink,
		log:       log,
		session:   session,
		now:       time.Now,
	}
}

// Session returns the statistics accumulated by the handler.
func (h *Handler) Session() *stats.Session { return h.session }

// Handle decodes one message. A message that cannot be decoded is logged,
// counted and skipped; the returned error is informational only.
func (h *Handler) Handle(topic string, raw []byte) error {
	now := h.now()
	p, err := model.Decode(raw)
	if err != nil {
		reason := "not_json"
		var de *model.DecodeError
		if errors.As(err, &de) {
			reason = de.Kind.String()
		}
		h.log.Warnf("skipping message on %s: %v (payload %q)", topic, err, truncate(raw, 128))
		h.session.Skip()
		h.record(h.sink.RecordMessage(coremetrics.MessageEvent{Topic: topic, Decoded: false, Reason: reason, Time: now}))
		return err
	}

	h.session.Observe(p)
	h.record(h.sink.RecordMessage(coremetrics.MessageEvent{Topic: topic, Decoded: true, Time: now}))
	h.record(h.sink.RecordVehicleState(coremetrics.VehicleStateEvent{Payload: p, Topic: topic, Component: "subscriber", Time: now}))
	h.log.Debugw("received vehicle parameters", map[string]any{
		"topic":          topic,
		"speed":          p.Speed,
		"cruise_control": p.CruiseControl,
		"gear":           string(p.Gear),
		"battery":        p.Battery,
	})

	for _, tr := range h.trackers {
		ev, ok := tr.Observe(p)
		if !ok {
			continue
		}
		h.session.Transition()
		h.logTransition(ev)
		h.record(h.sink.RecordTransition(coremetrics.TransitionEvent{Event: ev, Topic: topic}))
		if h.events != nil {
			h.events.Publish(ev)
		}
	}

	if h.onMessage != nil {
		h.onMessage(p)
	}
	return nil
}

func (h *Handler) logTransition(ev tracker.Event) {
	fields := map[string]any{"field": ev.Field, "event": ev.Kind.String()}
	if ev.Kind == tracker.Activated {
		fields["speed"] = ev.Speed
		h.log.Infow(ev.Field+" activated", fields)
		return
	}
	h.log.Infow(ev.Field+" deactivated", fields)
}

func (h *Handler) record(err error) {
	if err != nil {
		h.log.Errorf("metrics sink: %v", err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
