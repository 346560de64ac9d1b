// Package metrics defines the events recorded by the relay and the sink
// interface implemented by the Prometheus and InfluxDB backends. Sinks can be
// combined with a MultiSink from the infra/metrics package.
package metrics
