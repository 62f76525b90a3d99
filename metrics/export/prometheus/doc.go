// Package prometheus adapts an authcore Engine's metrics snapshot to a
// client_golang Collector. Register it with any registry, or mount Handler
// for a standalone endpoint. Counters are named authcore_*_total and the
// sign-in latency histogram authcore_signin_latency_seconds.
package prometheus
