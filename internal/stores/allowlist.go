package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/viridial/authcore/internal/counter"
)

const refreshSegment = "refresh"

// ErrAllowListUnavailable wraps fast-store failures on the allow-list.
var ErrAllowListUnavailable = counter.ErrUnavailable

// AllowList records which refresh tokens may still be rotated or revoked.
// Entries are keyed by a SHA-256 digest of the token so a store dump does not
// yield usable credentials; the value is the token's subject.
type AllowList struct {
	counter *counter.Client
}

func NewAllowList(c *counter.Client) *AllowList {
	return &AllowList{counter: c}
}

func (a *AllowList) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return a.counter.Key(refreshSegment, hex.EncodeToString(sum[:]))
}

// Put admits token for subject until ttl elapses.
func (a *AllowList) Put(ctx context.Context, token, subject string, ttl time.Duration) error {
	if token == "" || subject == "" {
		return errors.New("allow-list entry requires token and subject")
	}
	return a.counter.SetEX(ctx, a.key(token), subject, ttl)
}

// Take consumes the entry for token and returns its subject. ok is false
// when no entry existed; concurrent callers see at most one ok.
func (a *AllowList) Take(ctx context.Context, token string) (subject string, ok bool, err error) {
	if token == "" {
		return "", false, nil
	}
	return a.counter.Take(ctx, a.key(token))
}

// Delete removes the entry for token. Unknown tokens are not an error.
func (a *AllowList) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.counter.Del(ctx, a.key(token))
}
