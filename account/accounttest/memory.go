// Package accounttest provides an in-memory account.Store for tests.
package accounttest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/viridial/authcore/account"
)

// Store is a concurrency-safe in-memory account.Store. Roles resolves role
// ids to display names in Describe; unknown ids are passed through.
type Store struct {
	mu       sync.Mutex
	byID     map[string]*account.Account
	nextID   int
	Roles    map[string]string
	Profiles map[string]string
	// Err, when set, is returned from every call.
	Err error
	// Now stamps CreatedAt and UpdatedAt.
	Now func() time.Time
}

func NewStore() *Store {
	return &Store{byID: map[string]*account.Account{}, Now: time.Now}
}

// Put inserts or replaces acct, assigning an id when empty.
func (s *Store) Put(acct account.Account) *account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct.Identifier = account.NormalizeIdentifier(acct.Identifier)
	if acct.ID == "" {
		s.nextID++
		acct.ID = "acct-" + strconv.Itoa(s.nextID)
	}
	stored := acct
	s.byID[acct.Identifier] = &stored
	cp := stored
	return &cp
}

// Get returns a copy of the record for identifier, or nil.
func (s *Store) Get(identifier string) *account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[account.NormalizeIdentifier(identifier)]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (s *Store) FindByIdentifier(_ context.Context, identifier string) (*account.Account, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Get(identifier), nil
}

func (s *Store) Update(_ context.Context, identifier string, u account.Update) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[identifier]
	if !ok {
		return fmt.Errorf("account %q not found", identifier)
	}
	if u.SecretHash != nil {
		a.SecretHash = *u.SecretHash
	}
	if u.EmailVerified != nil {
		a.EmailVerified = *u.EmailVerified
	}
	if u.FailedAttempts != nil {
		a.FailedAttempts = *u.FailedAttempts
	}
	if u.LockUntil != nil {
		a.LockUntil = *u.LockUntil
	}
	if u.LastLogin != nil {
		a.LastLogin = *u.LastLogin
	}
	a.UpdatedAt = s.Now()
	return nil
}

func (s *Store) Increment(_ context.Context, identifier string, field account.Field) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	if field != account.FieldFailedAttempts {
		return 0, fmt.Errorf("unsupported field %q", field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[identifier]
	if !ok {
		return 0, fmt.Errorf("account %q not found", identifier)
	}
	a.FailedAttempts++
	return a.FailedAttempts, nil
}

func (s *Store) Create(_ context.Context, in account.New) (*account.Account, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	id := account.NormalizeIdentifier(in.Identifier)
	s.mu.Lock()
	_, exists := s.byID[id]
	s.mu.Unlock()
	if exists {
		return nil, account.ErrDuplicate
	}
	now := s.Now()
	return s.Put(account.Account{
		Identifier:    id,
		DisplayName:   in.DisplayName,
		SecretHash:    in.SecretHash,
		Locale:        in.Locale,
		EmailVerified: in.EmailVerified,
		RoleIDs:       in.RoleIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}), nil
}

func (s *Store) Describe(_ context.Context, a *account.Account) (*account.Summary, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if a == nil {
		return nil, errors.New("nil account")
	}
	return &account.Summary{
		ID:            a.ID,
		Identifier:    a.Identifier,
		DisplayName:   a.DisplayName,
		Locale:        a.Locale,
		EmailVerified: a.EmailVerified,
		Roles:         resolve(s.Roles, a.RoleIDs),
		Profiles:      resolve(s.Profiles, a.ProfileIDs),
	}, nil
}

func resolve(names map[string]string, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
			continue
		}
		out = append(out, id)
	}
	return out
}
