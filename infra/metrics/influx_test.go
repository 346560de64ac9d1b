package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/core/model"
	"github.com/kilianp07/vehrelay/core/tracker"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(b)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSinkRecordPublish(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.PublishEvent{Topic: "vehicle/parameters", Bytes: 200, Attempt: 1, Outcome: coremetrics.OutcomeOK, Latency: 15 * time.Millisecond, Time: now}
	require.NoError(t, sink.RecordPublish(ev))

	p := write.NewPointWithMeasurement("publish_attempt").
		AddTag("topic", "vehicle/parameters").
		AddTag("outcome", "ok").
		AddTag("component", "publisher").
		AddField("attempt", 1).
		AddField("bytes", 200).
		AddField("latency_ms", 15.0).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.all())
}

func TestInfluxSinkRecordVehicleState(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	v := model.Sample()
	v.Speed = 55.5
	v.CruiseControl = true
	require.NoError(t, sink.RecordVehicleState(coremetrics.VehicleStateEvent{Payload: v, Topic: "vehicle/parameters", Component: "subscriber", Time: now}))

	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("topic", "vehicle/parameters").
		AddTag("component", "subscriber").
		AddTag("vehicle_type", "car").
		AddTag("gear", "P").
		AddField("speed", 55.5).
		AddField("battery", 80.0).
		AddField("rpm", 0.0).
		AddField("range", 320.0).
		AddField("engine_temperature", 90.0).
		AddField("ambient_temperature", 22.0).
		AddField("cruise_control", true).
		AddField("share_location", false).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.all())
}

func TestInfluxSinkRecordTransition(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	ev := tracker.Event{Kind: tracker.Activated, Field: "CruiseControl", Speed: 100, Time: now}
	require.NoError(t, sink.RecordTransition(coremetrics.TransitionEvent{Event: ev, Topic: "vehicle/parameters"}))
	require.NoError(t, sink.RecordMessage(coremetrics.MessageEvent{Topic: "vehicle/parameters", Decoded: true}))

	p := write.NewPointWithMeasurement("state_transition").
		AddTag("field", "CruiseControl").
		AddTag("kind", "activated").
		AddTag("topic", "vehicle/parameters").
		AddField("speed", 100.0).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.all())
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	cfg := coremetrics.Config{
		InfluxURL:    srv.URL + "/api/v2/write",
		InfluxToken:  "tok",
		InfluxOrg:    "org",
		InfluxBucket: "bucket",
	}
	sink := NewInfluxSinkWithFallback(cfg)
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}
