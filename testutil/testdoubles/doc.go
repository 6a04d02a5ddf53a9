// Package testdoubles provides spy implementations of the observability
// interfaces from the eventstore package, so tests can assert on logging,
// metrics and tracing without a real backend.
package testdoubles
