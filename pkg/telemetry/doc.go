// Package telemetry instruments the change-propagation pipeline with
// OpenTelemetry metrics and traces.
//
// Instruments are created against the globally registered meter and
// tracer providers; with no SDK configured they are no-ops, so callers
// never need to guard instrumentation behind a flag.
package telemetry
