// Callisto is a rule-based automation engine for revenue cycle workflows.
//
// It evaluates configurable rules against claims, accounts, and denials,
// providing:
//   - Trigger-driven rule selection (create, update, status change, schedule)
//   - AND/OR condition trees with twenty comparison operators
//   - Ordered action chains (field updates, work queues, tasks, notifications)
//   - A persistent audit trail of every rule execution
//   - Prometheus metrics and health probes
//
// Usage:
//
//	# Start the engine with default configuration
//	callisto run
//
//	# Start with custom configuration file
//	callisto run --config /path/to/config.yaml
//
//	# Show version information
//	callisto version
//
//	# Validate rule files
//	callisto validate --rules rules/
//
//	# Dry-run a rule against a sample entity
//	callisto test --rule rules/denial-review.yaml --entity fixtures/claim.json
//
//	# Query the audit trail
//	callisto audit query --rule-id denial-review --limit 20
package main

func main() {
	Execute()
}
