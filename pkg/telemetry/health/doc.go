// Package health provides liveness and readiness checks for the ops server.
// Components register named CheckFuncs (rule store, audit storage, rule
// source) and the checker aggregates them into probe responses.
package health
