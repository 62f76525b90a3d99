// Package authcore authenticates accounts and manages the lifecycle of their
// bearer credentials: short-lived access tokens, rotating refresh tokens held
// in an allow-list, and email-verification tokens. Failed sign-ins are
// throttled per identifier with a windowed counter in Redis backed by a
// durable lock on the account record.
//
// Build an [Engine] with [Builder]; its methods are safe for concurrent use.
// All shared state lives in Redis and in the [account.Store]; the Engine holds
// only configuration, handles, and in-process metrics.
//
// Errors returned by Engine methods are the sentinels in errors.go, possibly
// wrapped. Use [ClassOf] to map them to a caller-facing status and
// [PublicError] before showing them to an end user.
package authcore
