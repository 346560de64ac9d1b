package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/vehrelay/core/metrics"
	"github.com/kilianp07/vehrelay/infra/logger"
)

const writeTimeout = 5 * time.Second

// InfluxSink writes relay events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPublish writes one publish attempt.
func (s *InfluxSink) RecordPublish(ev coremetrics.PublishEvent) error {
	p := write.NewPointWithMeasurement("publish_attempt").
		AddTag("topic", ev.Topic).
		AddTag("outcome", ev.Outcome).
		AddTag("component", "publisher").
		AddField("attempt", ev.Attempt).
		AddField("bytes", ev.Bytes).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordMessage is a no-op: decoded snapshots are written by
// RecordVehicleState and skipped messages are only counted by Prometheus.
func (s *InfluxSink) RecordMessage(coremetrics.MessageEvent) error { return nil }

// RecordVehicleState writes a snapshot of the vehicle.
func (s *InfluxSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	v := ev.Payload
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("topic", ev.Topic)
	if ev.Component != "" {
		p.AddTag("component", ev.Component)
	}
	p = p.AddTag("vehicle_type", v.TypeOfVehicle.String()).
		AddTag("gear", string(v.Gear)).
		AddField("speed", round3(v.Speed)).
		AddField("battery", round3(v.Battery)).
		AddField("rpm", round3(v.RPM)).
		AddField("range", round3(v.Range)).
		AddField("engine_temperature", round3(v.EngineTemperature)).
		AddField("ambient_temperature", round3(v.AmbientTemperature)).
		AddField("cruise_control", v.CruiseControl).
		AddField("share_location", v.ShareLocation).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordTransition writes a tracked field transition.
func (s *InfluxSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	p := write.NewPointWithMeasurement("state_transition").
		AddTag("field", ev.Event.Field).
		AddTag("kind", ev.Event.Kind.String()).
		AddTag("topic", ev.Topic).
		AddField("speed", round3(ev.Event.Speed)).
		SetTime(ev.Event.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
