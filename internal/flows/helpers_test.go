package flows

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/viridial/authcore/account"
	"github.com/viridial/authcore/account/accounttest"
	"github.com/viridial/authcore/internal/counter"
	"github.com/viridial/authcore/internal/stores"
	"github.com/viridial/authcore/internal/throttle"
	"github.com/viridial/authcore/jwt"
	"github.com/viridial/authcore/mail"
	"github.com/viridial/authcore/password"
)

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

type harness struct {
	mr       *miniredis.Miniredis
	accounts *accounttest.Store
	hasher   *password.Hasher
	codec    *jwt.Codec
	allow    *stores.AllowList
	throttle *throttle.Throttle
	clock    *testClock

	mu     sync.Mutex
	mailed []mail.Message
}

func newHarness(t *testing.T, limit int) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		mr:       mr,
		accounts: accounttest.NewStore(),
		clock:    &testClock{now: time.Now().Truncate(time.Second)},
	}
	h.accounts.Now = h.clock.Now
	h.accounts.Roles = map[string]string{"r-admin": "admin"}

	h.hasher, err = password.NewHasher(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MinPasswordBytes: 8,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	h.codec, err = jwt.NewCodec(jwt.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		EmailSecret:   []byte("email-secret-for-tests"),
		Now:           h.clock.Now,
	})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	c := counter.New(rdb, counter.Config{KeyPrefix: "auth", Timeout: 200 * time.Millisecond})
	h.allow = stores.NewAllowList(c)
	h.throttle, err = throttle.New(c, DurableAttempts{Store: h.accounts},
		throttle.Config{Limit: limit, Window: 15 * time.Minute}, h.clock.Now, nil, throttle.Hooks{})
	if err != nil {
		t.Fatalf("throttle: %v", err)
	}
	return h
}

func (h *harness) addAccount(t *testing.T, identifier, secret string, verified bool) *account.Account {
	t.Helper()
	hash, err := h.hasher.Hash(secret)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h.accounts.Put(account.Account{
		Identifier:    identifier,
		SecretHash:    hash,
		EmailVerified: verified,
		Locale:        "en",
		RoleIDs:       []string{"r-admin"},
	})
}

func (h *harness) ttls() TokenTTLs {
	return TokenTTLs{Access: 15 * time.Minute, Refresh: 7 * 24 * time.Hour, Email: 24 * time.Hour}
}

func (h *harness) signInDeps() SignInDeps {
	return SignInDeps{
		Accounts:       h.accounts,
		Throttle:       h.throttle,
		Codec:          h.codec,
		AllowList:      h.allow,
		Passwords:      h.hasher,
		TTLs:           h.ttls(),
		UpgradeSecrets: true,
		ClientIP:       func(context.Context) string { return "203.0.113.7" },
		UserAgent:      func(context.Context) string { return "test-agent" },
		Now:            h.clock.Now,
		Logger:         zap.NewNop(),
	}
}

func (h *harness) rotateDeps() RotateDeps {
	return RotateDeps{Codec: h.codec, AllowList: h.allow, TTLs: h.ttls()}
}

func (h *harness) emailDeps() EmailDeps {
	return EmailDeps{
		Accounts: h.accounts,
		Codec:    h.codec,
		TTLs:     h.ttls(),
		Logger:   zap.NewNop(),
		Mail: func(_ context.Context, m mail.Message) bool {
			h.mu.Lock()
			h.mailed = append(h.mailed, m)
			h.mu.Unlock()
			return true
		},
	}
}

func (h *harness) mailCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.mailed)
}

func (h *harness) lastMail() mail.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mailed[len(h.mailed)-1]
}

type failingCodec struct{}

func (failingCodec) Issue(jwt.Kind, string, jwt.Payload, time.Duration) (string, error) {
	return "", jwt.ErrSigning
}

func (failingCodec) Verify(jwt.Kind, string) (*jwt.Claims, error) {
	return nil, jwt.ErrSigning
}
