// Package core holds the research workflow domain: its events, its aggregate
// and the value types they share. It depends only on the library packages and
// stays free of storage and transport concerns.
package core
