// Package codec translates between domain events and the JSON payloads
// persisted in the event log.
//
// A Registry holds one decoder per (event type, schema version) pair and
// one upcaster per migration step between adjacent schema versions.
// Payloads written with an older schema version are migrated step by step
// until a registered decoder is reached, so consumers only ever see the
// current in-memory representation of an event.
package codec
