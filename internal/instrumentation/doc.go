// Package instrumentation defines the OpenTelemetry metrics emitted by the
// OAuth flow, the token refresher and the MCP session manager.
//
// Instruments are created on an injected metric.MeterProvider so tests can
// attach a manual reader; production code uses the global provider, which
// is a noop unless an exporter is configured.
package instrumentation
