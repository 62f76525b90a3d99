package authcore

import (
	"context"
	"time"

	"github.com/viridial/authcore/account"
)

// boundedStore caps every durable-store call at timeout so a slow database
// cannot hold a sign-in open indefinitely.
type boundedStore struct {
	inner   account.Store
	timeout time.Duration
}

func newBoundedStore(inner account.Store, timeout time.Duration) *boundedStore {
	return &boundedStore{inner: inner, timeout: timeout}
}

func (s *boundedStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *boundedStore) FindByIdentifier(ctx context.Context, identifier string) (*account.Account, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.FindByIdentifier(ctx, identifier)
}

func (s *boundedStore) Update(ctx context.Context, identifier string, u account.Update) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Update(ctx, identifier, u)
}

func (s *boundedStore) Increment(ctx context.Context, identifier string, field account.Field) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Increment(ctx, identifier, field)
}

func (s *boundedStore) Create(ctx context.Context, in account.New) (*account.Account, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Create(ctx, in)
}

func (s *boundedStore) Describe(ctx context.Context, a *account.Account) (*account.Summary, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Describe(ctx, a)
}
