package flows

import (
	"context"
	"time"

	"github.com/viridial/authcore/account"
)

// DurableAttempts exposes the account store's attempt counter and lock
// fields to the throttle.
type DurableAttempts struct {
	Store account.Store
}

func (d DurableAttempts) IncrementFailures(ctx context.Context, identifier string) (int64, error) {
	return d.Store.Increment(ctx, identifier, account.FieldFailedAttempts)
}

func (d DurableAttempts) Lock(ctx context.Context, identifier string, until time.Time) error {
	return d.Store.Update(ctx, identifier, account.Update{LockUntil: &until})
}

func (d DurableAttempts) Clear(ctx context.Context, identifier string) error {
	return d.Store.Update(ctx, identifier, account.ClearThrottle())
}
