// Package otel bridges engine metric snapshots into OpenTelemetry
// observable instruments via a pull-based collection callback.
package otel
