// Package middleware adapts authcore.Engine to net/http.
//
// Guard verifies the bearer access token and stores the resulting
// [authcore.Identity] in the request context. RequireRole narrows a route to
// identities with a matching role. RateLimiter is a per-IP token bucket for
// the public auth routes. WriteError is the single place engine errors turn
// into HTTP status codes and {"error": ...} bodies.
//
// No token parsing or counter-store access happens here; every decision is
// delegated to the engine.
package middleware
