package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/core/model"
	"github.com/kilianp07/vehrelay/core/tracker"
)

func TestPromSinkRecordPublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordPublish(coremetrics.PublishEvent{Topic: "vehicle/parameters", Bytes: 120, Outcome: coremetrics.OutcomeOK, Latency: 20 * time.Millisecond}))
	require.NoError(t, sink.RecordPublish(coremetrics.PublishEvent{Topic: "vehicle/parameters", Bytes: 120, Outcome: coremetrics.OutcomeTimeout, Latency: 5 * time.Second}))

	expected := `
# HELP vehrelay_publish_total Publish attempts by outcome
# TYPE vehrelay_publish_total counter
vehrelay_publish_total{outcome="ok",topic="vehicle/parameters"} 1
vehrelay_publish_total{outcome="timeout",topic="vehicle/parameters"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(sink.publishes, strings.NewReader(expected)))
	assert.Equal(t, 2, testutil.CollectAndCount(sink.latency))
	assert.Equal(t, 120.0, testutil.ToFloat64(sink.bytes))
}

func TestPromSinkRecordMessageAndState(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordMessage(coremetrics.MessageEvent{Topic: "t", Decoded: false, Reason: "not_json"}))
	require.NoError(t, sink.RecordMessage(coremetrics.MessageEvent{Topic: "t", Decoded: true}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.messages.WithLabelValues("t", "false", "not_json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.messages.WithLabelValues("t", "true", "")))

	p := model.Sample()
	p.Speed = 72
	p.Battery = 64
	p.CruiseControl = true
	require.NoError(t, sink.RecordVehicleState(coremetrics.VehicleStateEvent{Payload: p}))
	assert.Equal(t, 72.0, testutil.ToFloat64(sink.speed))
	assert.Equal(t, 64.0, testutil.ToFloat64(sink.battery))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.cruise))

	ev := tracker.Event{Kind: tracker.Activated, Field: "CruiseControl", Speed: 72}
	require.NoError(t, sink.RecordTransition(coremetrics.TransitionEvent{Event: ev}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.transitions.WithLabelValues("CruiseControl", "activated")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, second.RecordPublish(coremetrics.PublishEvent{Topic: "t", Outcome: coremetrics.OutcomeOK}))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.publishes.WithLabelValues("t", coremetrics.OutcomeOK)))
}
