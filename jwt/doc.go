// Package jwt issues and verifies the three signed credential kinds used by
// the engine: access, refresh, and email-verification tokens. Each kind has
// its own HMAC secret and every token carries its kind, so a token issued for
// one purpose never verifies as another.
package jwt
