// Package audit persists rule execution outcomes. Every (rule, trigger
// event) run produces one immutable ExecutionRecord carrying the condition
// traces and action results, written asynchronously so recording never
// blocks rule processing. Subpackages provide the async recorder, the
// storage backends, and scheduled retention pruning.
package audit
