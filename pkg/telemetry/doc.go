// Package telemetry groups the observability building blocks for the rule
// engine service.
//
//   - logging: structured slog construction with PHI redaction
//   - metrics: Prometheus metrics for events, rules, actions and audit
//   - health: liveness/readiness probes for the ops server
//
// Each subpackage stands alone; the run command wires them together.
package telemetry
