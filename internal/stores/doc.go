// Package stores holds the refresh-token allow-list kept in the counter
// store. Entries are keyed by a digest of the token, never the token itself,
// and expire with the token. Removal is a single atomic read-and-delete so
// concurrent rotations of one token have at most one winner.
package stores
