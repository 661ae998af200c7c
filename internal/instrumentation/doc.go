// Package instrumentation provides the metric pipeline: an OpenTelemetry
// meter provider backed by a Prometheus registry, plus typed recorders for
// the events this server cares about (tool invocations, mail API calls,
// token refreshes).
package instrumentation
