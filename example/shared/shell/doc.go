// Package shell holds the adapter layer of the research workflow example:
// codec registration including schema upcasting, correlation metadata,
// environment configuration, and the command retry helper.
package shell
