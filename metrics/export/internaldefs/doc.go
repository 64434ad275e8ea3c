// Package internaldefs holds the metric name catalog shared by the
// Prometheus and OTel exporters, so both expose identical series names and
// bucket layouts.
package internaldefs
