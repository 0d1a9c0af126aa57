// Package store persists rule definitions. Two backends exist: an
// in-memory store for tests and ephemeral deployments, and a SQLite store
// for single-instance durability. The Cache type holds an immutable rule
// snapshot so batch processing sees one consistent rule set end to end.
package store
