package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/viridial/authcore/internal/autherr"
)

// Kind tags a token with the purpose it was issued for.
type Kind string

const (
	KindAccess            Kind = "access"
	KindRefresh           Kind = "refresh"
	KindEmailVerification Kind = "email_verification"
)

func (k Kind) valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindEmailVerification:
		return true
	}
	return false
}

// Errors returned by the codec. They are the engine's taxonomy sentinels, so
// callers can match them with errors.Is without translation.
var (
	ErrSigning = autherr.ErrSigning
	ErrInvalid = autherr.ErrInvalidToken
	ErrExpired = autherr.ErrExpiredToken
)

// Config holds per-kind secrets. AccessSecret falls back to SharedSecret when
// empty. A kind whose secret resolves to empty fails every Issue and Verify
// with ErrSigning.
type Config struct {
	AccessSecret  []byte
	SharedSecret  []byte
	RefreshSecret []byte
	EmailSecret   []byte
	Issuer        string
	Leeway        time.Duration
	Now           func() time.Time
}

// Payload is the caller-supplied part of a token.
type Payload struct {
	Email  string
	Locale string
	Roles  []string
}

// Claims is the decoded content of a verified token.
type Claims struct {
	Kind   Kind     `json:"knd"`
	Email  string   `json:"email,omitempty"`
	Locale string   `json:"lang,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Payload returns the caller-supplied fields of c.
func (c *Claims) Payload() Payload {
	return Payload{Email: c.Email, Locale: c.Locale, Roles: c.Roles}
}

// Codec signs and verifies tokens. It is safe for concurrent use.
type Codec struct {
	secrets map[Kind][]byte
	issuer  string
	leeway  time.Duration
	now     func() time.Time
}

func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	access := cfg.AccessSecret
	if len(access) == 0 {
		access = cfg.SharedSecret
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		secrets: map[Kind][]byte{
			KindAccess:            access,
			KindRefresh:           cfg.RefreshSecret,
			KindEmailVerification: cfg.EmailSecret,
		},
		issuer: strings.TrimSpace(cfg.Issuer),
		leeway: cfg.Leeway,
		now:    now,
	}, nil
}

// Issue signs a token of the given kind for subject, expiring after ttl.
// Roles are dropped from email-verification tokens.
func (c *Codec) Issue(kind Kind, subject string, p Payload, ttl time.Duration) (string, error) {
	if !kind.valid() {
		return "", fmt.Errorf("%w: unknown token kind %q", ErrSigning, kind)
	}
	secret := c.secrets[kind]
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: no secret configured for %s tokens", ErrSigning, kind)
	}
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrSigning)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: non-positive ttl", ErrSigning)
	}

	now := c.now()
	claims := Claims{
		Kind:   kind,
		Email:  p.Email,
		Locale: p.Locale,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry(now, ttl)),
			Issuer:    c.issuer,
		},
	}
	if kind != KindEmailVerification && len(p.Roles) > 0 {
		claims.Roles = append([]string(nil), p.Roles...)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// expiry rounds now+ttl up to the whole second NumericDate can carry, so a
// token never expires before its full ttl has elapsed.
func expiry(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if t := exp.Truncate(jwt.TimePrecision); !t.Equal(exp) {
		return t.Add(jwt.TimePrecision)
	}
	return exp
}

// Verify checks signature, expiry, issuer, and kind. Expired tokens fail with
// ErrExpired; every other rejection is ErrInvalid.
func (c *Codec) Verify(kind Kind, token string) (*Claims, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrInvalid, kind)
	}
	secret := c.secrets[kind]
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: no secret configured for %s tokens", ErrSigning, kind)
	}
	if token == "" {
		return nil, ErrInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.leeway > 0 {
		options = append(options, jwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: token kind %q, want %q", ErrInvalid, claims.Kind, kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return claims, nil
}
