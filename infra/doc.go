// Package infra contains technical adapters: the zerolog logger, the
// Prometheus and Influx KPI sinks and the MQTT notifier. These packages
// depend only on the interfaces defined in the core packages.
package infra
