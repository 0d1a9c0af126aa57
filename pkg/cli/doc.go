// Package cli holds shared helpers for the callisto commands: typed command
// errors, output formatting and shutdown signal handling.
package cli
