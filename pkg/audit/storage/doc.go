// Package storage provides the audit record backends: an in-memory store
// for tests and a SQLite store for durable single-instance deployments.
package storage
