package flows

import (
	"context"
	"fmt"

	"github.com/viridial/authcore/account"
	"github.com/viridial/authcore/internal/autherr"
	"github.com/viridial/authcore/internal/throttle"
)

type UnlockDeps struct {
	Accounts account.Store
	Throttle AttemptThrottle
}

// RunUnlock clears every throttle trace for identifier. Unknown identifiers
// only lose their fast counter.
func RunUnlock(ctx context.Context, identifier string, deps UnlockDeps) error {
	id := account.NormalizeIdentifier(identifier)
	if id == "" {
		return autherr.ErrInvalidRequest
	}
	acct, err := deps.Accounts.FindByIdentifier(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: find account: %v", autherr.ErrInternal, err)
	}
	var rec *throttle.Record
	if acct != nil {
		// Force the durable clear even if the read raced a concurrent failure.
		rec = &throttle.Record{FailedAttempts: 1}
	}
	if err := deps.Throttle.Reset(ctx, id, rec); err != nil {
		return fmt.Errorf("%w: %v", autherr.ErrInternal, err)
	}
	return nil
}
