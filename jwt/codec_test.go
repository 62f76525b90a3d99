package jwt

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	cfg := Config{
		AccessSecret:  []byte("access-secret-access-secret"),
		RefreshSecret: []byte("refresh-secret-refresh-secret"),
		EmailSecret:   []byte("email-secret-email-secret"),
	}
	if clock != nil {
		cfg.Now = clock.Now
	}
	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	c := newTestCodec(t, nil)
	payload := Payload{Email: "ada@example.com", Locale: "es", Roles: []string{"admin"}}

	for _, kind := range []Kind{KindAccess, KindRefresh} {
		token, err := c.Issue(kind, "u1", payload, time.Minute)
		if err != nil {
			t.Fatalf("issue %s: %v", kind, err)
		}
		claims, err := c.Verify(kind, token)
		if err != nil {
			t.Fatalf("verify %s: %v", kind, err)
		}
		if claims.Subject != "u1" || !reflect.DeepEqual(claims.Payload(), payload) {
			t.Fatalf("%s round trip mismatch: %+v", kind, claims)
		}
	}
}

func TestEmailTokenDropsRoles(t *testing.T) {
	c := newTestCodec(t, nil)
	token, err := c.Issue(KindEmailVerification, "u1", Payload{Email: "a@b.c", Roles: []string{"admin"}}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := c.Verify(KindEmailVerification, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(claims.Roles) != 0 || claims.Email != "a@b.c" {
		t.Fatalf("unexpected email claims: %+v", claims)
	}
}

func TestRefreshTokensIssuedTogetherAreDistinct(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)
	a, err := c.Issue(KindRefresh, "u1", Payload{}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := c.Issue(KindRefresh, "u1", Payload{}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct refresh tokens within the same second")
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)
	token, err := c.Issue(KindEmailVerification, "u1", Payload{Email: "a@b.c"}, time.Second)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := c.Verify(KindEmailVerification, token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestSubSecondIssueKeepsFullTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 700*int64(time.Millisecond))}
	c := newTestCodec(t, clock)
	token, err := c.Issue(KindEmailVerification, "u1", Payload{Email: "a@b.c"}, time.Second)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(500 * time.Millisecond)
	claims, err := c.Verify(KindEmailVerification, token)
	if err != nil {
		t.Fatalf("token expired before its ttl: %v", err)
	}
	if want := time.Unix(1_700_000_002, 0); !claims.ExpiresAt.Time.Equal(want) {
		t.Fatalf("exp = %v, want %v", claims.ExpiresAt.Time, want)
	}

	clock.Advance(time.Second)
	if _, err := c.Verify(KindEmailVerification, token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestWholeSecondExpiryIsExact(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	if got := expiry(now, time.Minute); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("expiry = %v", got)
	}
	if got := expiry(now.Add(time.Nanosecond), time.Minute); !got.Equal(now.Add(time.Minute + time.Second)) {
		t.Fatalf("expiry = %v", got)
	}
}

func TestVerifyRejectsTamperedAndCrossKind(t *testing.T) {
	c := newTestCodec(t, nil)
	token, err := c.Issue(KindAccess, "u1", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := c.Verify(KindAccess, tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for tampered signature, got %v", err)
	}
	if _, err := c.Verify(KindRefresh, token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for cross-kind verify, got %v", err)
	}
	if _, err := c.Verify(KindAccess, "not-a-token"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for garbage, got %v", err)
	}
}

func TestSharedSecretFallbackStillBindsKind(t *testing.T) {
	shared := []byte("shared-secret-shared-secret")
	c, err := NewCodec(Config{SharedSecret: shared, RefreshSecret: shared})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	refresh, err := c.Issue(KindRefresh, "u1", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Verify(KindAccess, refresh); !errors.Is(err, ErrInvalid) {
		t.Fatalf("refresh token must not verify as access, got %v", err)
	}
	access, err := c.Issue(KindAccess, "u1", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue access with shared secret: %v", err)
	}
	if _, err := c.Verify(KindAccess, access); err != nil {
		t.Fatalf("verify access: %v", err)
	}
}

func TestEmptySecretIsSigningError(t *testing.T) {
	c, err := NewCodec(Config{AccessSecret: []byte("a-secret")})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := c.Issue(KindEmailVerification, "u1", Payload{}, time.Minute); !errors.Is(err, ErrSigning) {
		t.Fatalf("expected ErrSigning, got %v", err)
	}
	if _, err := c.Verify(KindRefresh, "x.y.z"); !errors.Is(err, ErrSigning) {
		t.Fatalf("expected ErrSigning on verify, got %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	c := newTestCodec(t, nil)
	claims := Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString([]byte("access-secret-access-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(KindAccess, token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected HS512 token to be rejected, got %v", err)
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	c := newTestCodec(t, nil)
	claims := Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{Subject: "u1"}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("access-secret-access-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(KindAccess, token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected token without exp to be rejected, got %v", err)
	}
}

func FuzzVerify(f *testing.F) {
	c, err := NewCodec(Config{AccessSecret: []byte("fuzz-secret-fuzz-secret")})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := c.Issue(KindAccess, "u1", Payload{Email: "a@b.c"}, time.Minute)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1MSJ9.")
	f.Fuzz(func(t *testing.T, token string) {
		claims, err := c.Verify(KindAccess, token)
		if err == nil && claims.Subject == "" {
			t.Fatal("accepted token without subject")
		}
	})
}
