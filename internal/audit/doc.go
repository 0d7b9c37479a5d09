// Package audit defines the audit event model, the built-in sinks and the asynchronous
// dispatcher the engine emits through.
//
// The dispatcher never blocks token checks when DropIfFull is set; dropped events are
// counted and surfaced through Dropped.
package audit
