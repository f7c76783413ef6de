// Package audit holds the internal audit event model and the asynchronous
// dispatcher that forwards events to a caller-supplied sink.
//
// The root package re-exports the sink types; nothing here may import the
// root package.
package audit
