// Package metrics provides the Prometheus instrumentation for rule
// processing. A Collector owns the registry and pre-registered metric
// families for trigger events, rule executions, action outcomes and audit
// writes, plus an HTTP handler for the scrape endpoint.
//
// Label cardinality is bounded: rule IDs past the limit aggregate into an
// "other" label so a misbehaving rule set cannot blow up the registry.
package metrics
