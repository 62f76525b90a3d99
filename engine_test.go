package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/viridial/authcore/account"
	"github.com/viridial/authcore/account/accounttest"
	"github.com/viridial/authcore/mail"
	"github.com/viridial/authcore/password"
)

const testSecret = "correct horse battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	accounts *accounttest.Store
	clock    *testClock
	mail     chan mail.Message
	audit    *ChannelSink
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.AccessSecret = []byte("access-secret-0123456789")
	cfg.Tokens.RefreshSecret = []byte("refresh-secret-0123456789")
	cfg.Tokens.EmailSecret = []byte("email-secret-0123456789")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Password.MinPasswordBytes = 8
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		mr:       mr,
		accounts: accounttest.NewStore(),
		clock:    &testClock{now: time.Now().Truncate(time.Second)},
		mail:     make(chan mail.Message, 8),
		audit:    NewChannelSink(64),
	}
	env.accounts.Roles = map[string]string{"r-admin": "admin", "r-user": "user"}
	env.accounts.Now = env.clock.Now

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(env.accounts).
		WithClock(env.clock.Now).
		WithAuditSink(env.audit).
		WithMailer(mail.SenderFunc(func(_ context.Context, msg mail.Message) error {
			env.mail <- msg
			return nil
		})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) addAccount(t *testing.T, identifier string, verified bool, roles ...string) *account.Account {
	t.Helper()

	h, err := password.NewHasher(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MinPasswordBytes: 8,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	hash, err := h.Hash(testSecret)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return env.accounts.Put(account.Account{
		Identifier:    identifier,
		SecretHash:    hash,
		Locale:        "en",
		EmailVerified: verified,
		RoleIDs:       roles,
	})
}

func (env *testEnv) nextMail(t *testing.T) mail.Message {
	t.Helper()
	select {
	case msg := <-env.mail:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no mail delivered")
		return mail.Message{}
	}
}

func (env *testEnv) nextAudit(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-env.audit.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s audit event", eventType)
			return AuditEvent{}
		}
	}
}

func TestSignInIssuesValidPair(t *testing.T) {
	env := newTestEnv(t, nil)
	acct := env.addAccount(t, "ada@example.com", true, "r-admin")

	res, err := env.engine.SignIn(context.Background(), " Ada@Example.com ", testSecret)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if res.Account.ID != acct.ID || res.Account.Identifier != "ada@example.com" {
		t.Fatalf("unexpected summary: %+v", res.Account)
	}

	id, err := env.engine.ValidateAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if id.Subject != acct.ID || id.Email != "ada@example.com" || !id.HasRole("admin") {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if _, err := env.engine.ValidateAccess(res.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}

	ev := env.nextAudit(t, auditEventSignInSuccess)
	if !ev.Success || ev.Subject != acct.ID {
		t.Fatalf("unexpected audit event: %+v", ev)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSignInSuccess]; got != 1 {
		t.Fatalf("expected 1 sign-in success, got %d", got)
	}
}

func TestSignInAttemptLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Throttle.AttemptLimit = 3 })
	env.addAccount(t, "bob@example.com", true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.engine.SignIn(ctx, "bob@example.com", "wrong-secret"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := env.engine.SignIn(ctx, "bob@example.com", testSecret)
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if ClassOf(err) != StatusTooManyRequests {
		t.Fatalf("expected 429 class, got %v", ClassOf(err))
	}
	if wait, ok := RetryAfter(err); !ok || wait <= 0 || wait > 15*time.Minute {
		t.Fatalf("retry after = %v %v", wait, ok)
	}

	n, err := env.engine.LoginAttempts(ctx, "bob@example.com")
	if err != nil || n != 3 {
		t.Fatalf("LoginAttempts = %d, %v", n, err)
	}

	if err := env.engine.UnlockAccount(ctx, "bob@example.com"); err != nil {
		t.Fatalf("UnlockAccount failed: %v", err)
	}
	if _, err := env.engine.SignIn(ctx, "bob@example.com", testSecret); err != nil {
		t.Fatalf("SignIn after unlock failed: %v", err)
	}
	if got := env.accounts.Get("bob@example.com"); got.FailedAttempts != 0 || !got.LockUntil.IsZero() {
		t.Fatalf("durable throttle not cleared: %+v", got)
	}
}

func TestSignInUnknownMatchesWrongSecret(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "carol@example.com", true)
	ctx := context.Background()

	_, errUnknown := env.engine.SignIn(ctx, "nobody@example.com", testSecret)
	_, errWrong := env.engine.SignIn(ctx, "carol@example.com", "wrong-secret")
	if errUnknown != errWrong || !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("distinguishable failures: %v vs %v", errUnknown, errWrong)
	}
	if PublicError(errUnknown) != ErrInvalidCredentials {
		t.Fatalf("unexpected public error %v", PublicError(errUnknown))
	}
}

func TestSignInLockedWhenCounterStoreFlushed(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Throttle.AttemptLimit = 2 })
	env.addAccount(t, "dan@example.com", true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = env.engine.SignIn(ctx, "dan@example.com", "wrong-secret")
	}
	env.mr.FlushAll()

	_, err := env.engine.SignIn(ctx, "dan@example.com", testSecret)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if ClassOf(err) != StatusForbidden {
		t.Fatalf("expected forbidden class, got %v", ClassOf(err))
	}
}

func TestSignInUnverified(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "erin@example.com", false)

	_, err := env.engine.SignIn(context.Background(), "erin@example.com", testSecret)
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	allowing := newTestEnv(t, func(c *Config) { c.Verification.AllowUnverifiedLogin = true })
	allowing.addAccount(t, "erin@example.com", false)
	if _, err := allowing.engine.SignIn(context.Background(), "erin@example.com", testSecret); err != nil {
		t.Fatalf("SignIn with unverified login allowed failed: %v", err)
	}
}

func TestRotateAndRevoke(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "fay@example.com", true)
	ctx := context.Background()

	res, err := env.engine.SignIn(ctx, "fay@example.com", testSecret)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	pair, err := env.engine.Rotate(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if pair.RefreshToken == res.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	if _, err := env.engine.Rotate(ctx, res.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for reused token, got %v", err)
	}

	if err := env.engine.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := env.engine.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
	if _, err := env.engine.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after revoke, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRotateSuccess] != 1 || snap.Counters[MetricRotateInvalid] != 2 {
		t.Fatalf("unexpected rotate counters: %+v", snap.Counters)
	}
}

func TestValidateAccessExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "gus@example.com", true)

	res, err := env.engine.SignIn(context.Background(), "gus@example.com", testSecret)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	env.clock.Advance(16 * time.Minute)

	if _, err := env.engine.ValidateAccess(res.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestSignUpVerifyThenSignIn(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	out, err := env.engine.SignUp(ctx, SignUpRequest{
		Identifier:  "Hana@Example.com",
		Secret:      testSecret,
		DisplayName: "Hana",
		Locale:      "ja",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if !out.VerificationRequired || !out.VerificationQueued {
		t.Fatalf("unexpected sign-up result: %+v", out)
	}

	if _, err := env.engine.SignUp(ctx, SignUpRequest{Identifier: "hana@example.com", Secret: testSecret}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	msg := env.nextMail(t)
	if msg.Recipient != "hana@example.com" || msg.Locale != "ja" || msg.Kind != mail.KindEmailVerification {
		t.Fatalf("unexpected mail: %+v", msg)
	}

	claims, err := env.engine.ConsumeEmailVerificationToken(msg.Token)
	if err != nil || claims.Subject != out.AccountID {
		t.Fatalf("ConsumeEmailVerificationToken = %+v, %v", claims, err)
	}

	if _, err := env.engine.SignIn(ctx, "hana@example.com", testSecret); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified before verification, got %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, msg.Token); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if _, err := env.engine.SignIn(ctx, "hana@example.com", testSecret); err != nil {
		t.Fatalf("SignIn after verification failed: %v", err)
	}

	if err := env.engine.ResendVerification(ctx, "hana@example.com"); err != nil {
		t.Fatalf("ResendVerification for verified account failed: %v", err)
	}
	if err := env.engine.ResendVerification(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("ResendVerification for unknown account failed: %v", err)
	}
	select {
	case extra := <-env.mail:
		t.Fatalf("unexpected mail: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmailVerificationTokenExpiry(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Tokens.EmailTTL = time.Second })

	token, err := env.engine.IssueEmailVerificationToken("acct-1", "ivy@example.com", "en")
	if err != nil {
		t.Fatalf("IssueEmailVerificationToken failed: %v", err)
	}
	env.clock.Advance(2 * time.Second)

	if _, err := env.engine.ConsumeEmailVerificationToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
	if _, err := env.engine.ConsumeEmailVerificationToken(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestEmailSecretMissing(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Tokens.EmailSecret = nil })

	if _, err := env.engine.IssueEmailVerificationToken("acct-1", "jo@example.com", ""); !errors.Is(err, ErrSigning) {
		t.Fatalf("expected ErrSigning, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	if h := env.engine.Health(context.Background()); !h.Available {
		t.Fatalf("expected available, got %+v", h)
	}
	env.mr.Close()
	if h := env.engine.Health(context.Background()); h.Available || h.Error == "" {
		t.Fatalf("expected unavailable, got %+v", h)
	}
}

func TestBuilderRequirements(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(testConfig()).WithAccountStore(accounttest.NewStore()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without account store")
	}

	bad := testConfig()
	bad.Tokens.RefreshSecret = nil
	if _, err := New().WithConfig(bad).WithRedis(rdb).WithAccountStore(accounttest.NewStore()).Build(); err == nil {
		t.Fatal("expected error without refresh secret")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithAccountStore(accounttest.NewStore())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.SignIn(context.Background(), "a@example.com", testSecret); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if PublicError(ErrEngineNotReady) != ErrEngineNotReady {
		t.Fatal("ErrEngineNotReady should stay public")
	}
	e.Close()
}
