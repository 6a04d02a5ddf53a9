// Package fixtures provides event builders and Given* helpers shared by the
// engine tests. The fixture event is deliberately domain-free: engine tests
// exercise storage semantics, not business rules.
package fixtures
