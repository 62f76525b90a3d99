// Package throttle tracks failed sign-in attempts per identifier in two
// places: a windowed counter in the fast store and an attempt counter plus
// lock-until timestamp on the durable account record. The fast counter is
// the primary signal; the durable lock keeps the account protected when the
// fast store is unreachable or has been flushed.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viridial/authcore/internal/autherr"
	"github.com/viridial/authcore/internal/counter"
)

const keySegment = "loginAttempts"

// Phase is the throttle state of one identifier.
type Phase int

const (
	PhaseClear Phase = iota
	PhaseWarned
	PhaseLocked
)

func (p Phase) String() string {
	switch p {
	case PhaseWarned:
		return "warned"
	case PhaseLocked:
		return "locked"
	default:
		return "clear"
	}
}

// Durable is the slice of the account store the throttle writes to.
type Durable interface {
	IncrementFailures(ctx context.Context, identifier string) (int64, error)
	Lock(ctx context.Context, identifier string, until time.Time) error
	Clear(ctx context.Context, identifier string) error
}

// Record is the durable throttle state read with the account. A nil *Record
// means the identifier has no account; only the fast counter is used then.
type Record struct {
	FailedAttempts int64
	LockUntil      time.Time
}

func (r *Record) locked(now time.Time) bool {
	return r != nil && !r.LockUntil.IsZero() && r.LockUntil.After(now)
}

type Config struct {
	Limit  int
	Window time.Duration
}

// Hooks lets the caller count fail-open decisions and lock transitions.
type Hooks struct {
	FailOpen func()
	Locked   func()
}

type Throttle struct {
	counter *counter.Client
	durable Durable
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
	hooks   Hooks
}

func New(c *counter.Client, durable Durable, cfg Config, now func() time.Time, logger *zap.Logger, hooks Hooks) (*Throttle, error) {
	if cfg.Limit < 1 {
		return nil, errors.New("throttle limit must be >= 1")
	}
	if cfg.Window < time.Second {
		return nil, errors.New("throttle window must be >= 1s")
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{counter: c, durable: durable, cfg: cfg, now: now, logger: logger, hooks: hooks}, nil
}

func (t *Throttle) key(identifier string) string {
	return t.counter.Key(keySegment, identifier)
}

// Check returns nil when a sign-in attempt may proceed. A fast counter at or
// above the limit yields ErrTooManyAttempts and, when the durable record is
// not yet locked, locks it too. An active durable lock yields
// ErrAccountLocked. Both refusals are *autherr.RetryError values carrying the
// time left. An unreachable fast store is skipped.
func (t *Throttle) Check(ctx context.Context, identifier string, rec *Record) error {
	now := t.now()

	n, err := t.counter.Count(ctx, t.key(identifier))
	switch {
	case err != nil:
		t.failOpen(identifier, err)
	case n >= int64(t.cfg.Limit):
		if rec != nil && !rec.locked(now) && t.durable != nil {
			t.lockDurable(ctx, identifier, now)
		}
		return &autherr.RetryError{Err: autherr.ErrTooManyAttempts, After: t.windowLeft(ctx, identifier)}
	}

	if rec.locked(now) {
		return &autherr.RetryError{Err: autherr.ErrAccountLocked, After: rec.LockUntil.Sub(now)}
	}

	// An expired lock still carries a counter at the limit; start the next
	// cycle from zero so the durable side does not relock on a single miss.
	if rec != nil && !rec.LockUntil.IsZero() && rec.FailedAttempts >= int64(t.cfg.Limit) && t.durable != nil {
		if err := t.durable.Clear(ctx, identifier); err != nil {
			t.logger.Warn("throttle: clearing expired durable lock failed",
				zap.String("identifier", identifier), zap.Error(err))
		} else {
			rec.FailedAttempts = 0
			rec.LockUntil = time.Time{}
		}
	}
	return nil
}

// RecordFailure counts one failed attempt on both stores. Failures of either
// store are logged, never returned: the caller's error is already decided.
func (t *Throttle) RecordFailure(ctx context.Context, identifier string, rec *Record) Phase {
	phase := PhaseWarned

	n, err := t.counter.IncrWithin(ctx, t.key(identifier), t.cfg.Window)
	if err != nil {
		t.logger.Warn("throttle: recording fast failure failed",
			zap.String("identifier", identifier), zap.Error(err))
	} else if n >= int64(t.cfg.Limit) {
		phase = PhaseLocked
	}

	if rec == nil || t.durable == nil {
		return phase
	}
	total, err := t.durable.IncrementFailures(ctx, identifier)
	if err != nil {
		t.logger.Warn("throttle: recording durable failure failed",
			zap.String("identifier", identifier), zap.Error(err))
		return phase
	}
	if total >= int64(t.cfg.Limit) {
		t.lockDurable(ctx, identifier, t.now())
		phase = PhaseLocked
	}
	return phase
}

// Reset drops the fast counter and clears the durable counter and lock. The
// fast delete is best-effort; a durable failure is returned.
func (t *Throttle) Reset(ctx context.Context, identifier string, rec *Record) error {
	if err := t.counter.Del(ctx, t.key(identifier)); err != nil {
		t.logger.Warn("throttle: clearing fast counter failed",
			zap.String("identifier", identifier), zap.Error(err))
	}
	if rec == nil || t.durable == nil {
		return nil
	}
	if rec.FailedAttempts == 0 && rec.LockUntil.IsZero() {
		return nil
	}
	if err := t.durable.Clear(ctx, identifier); err != nil {
		return fmt.Errorf("clear durable attempts: %w", err)
	}
	return nil
}

// Attempts returns the current fast counter. Absent counters report zero.
func (t *Throttle) Attempts(ctx context.Context, identifier string) (int64, error) {
	return t.counter.Count(ctx, t.key(identifier))
}

// windowLeft is the remaining life of the fast counter, or the full window
// when the store cannot say.
func (t *Throttle) windowLeft(ctx context.Context, identifier string) time.Duration {
	left, err := t.counter.Remaining(ctx, t.key(identifier))
	if err != nil || left <= 0 {
		return t.cfg.Window
	}
	return left
}

func (t *Throttle) lockDurable(ctx context.Context, identifier string, now time.Time) {
	if err := t.durable.Lock(ctx, identifier, now.Add(t.cfg.Window)); err != nil {
		t.logger.Warn("throttle: setting durable lock failed",
			zap.String("identifier", identifier), zap.Error(err))
		return
	}
	if t.hooks.Locked != nil {
		t.hooks.Locked()
	}
}

func (t *Throttle) failOpen(identifier string, err error) {
	t.logger.Warn("throttle: fast store unavailable, skipping counter check",
		zap.String("identifier", identifier), zap.Error(err))
	if t.hooks.FailOpen != nil {
		t.hooks.FailOpen()
	}
}
