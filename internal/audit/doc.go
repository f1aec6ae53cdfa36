// Package audit defines the audit event model and the sink implementations
// shared between the gateway's dispatcher and caller-facing type aliases.
//
// Sinks must tolerate concurrent Emit calls. The dispatcher, not the sink,
// owns buffering and drop accounting.
package audit
