// Package instrumentation provides OpenTelemetry metrics and tracing for the
// gateway. When disabled it falls back to no-op providers, so callers never
// need to nil-check their meters or tracers.
package instrumentation
