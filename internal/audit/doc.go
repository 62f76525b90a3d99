// Package audit defines the audit event model and the sinks that receive it.
// Delivery is asynchronous through internal/dispatch; sinks must not block
// for long and must never receive secrets or tokens.
package audit
