// Package infra contains technical adapters: the MQTT publisher and
// subscriber, the zerolog logger and the Prometheus and InfluxDB metrics
// sinks. These packages depend only on the interfaces and types defined in
// the core packages.
package infra
