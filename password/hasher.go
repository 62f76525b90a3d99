package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
	bcryptMaxLen  = 72

	// DefaultMinPasswordBytes and DefaultMaxPasswordBytes apply when the
	// corresponding Config field is zero.
	DefaultMinPasswordBytes = 10
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordLength is returned when a plaintext falls outside the
	// configured byte bounds.
	ErrPasswordLength = errors.New("password length out of bounds")
	// ErrUnsupportedHash is returned for stored hashes in no recognized format.
	ErrUnsupportedHash = errors.New("unsupported password hash format")
)

// Config sets the argon2id cost for new hashes and the accepted plaintext
// length in bytes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinPasswordBytes int
	MaxPasswordBytes int
}

// Hasher writes argon2id and still verifies bcrypt hashes carried over from
// older account records.
type Hasher struct {
	cost     cost
	saltLen  uint32
	keyLen   uint32
	min, max int
}

func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return nil, fmt.Errorf("password key length must be >= %d", minKeyLength)
	}

	h := &Hasher{
		cost:    cost{memory: cfg.Memory, passes: cfg.Time, threads: cfg.Parallelism},
		saltLen: cfg.SaltLength,
		keyLen:  cfg.KeyLength,
		min:     cfg.MinPasswordBytes,
		max:     cfg.MaxPasswordBytes,
	}
	if h.min == 0 {
		h.min = DefaultMinPasswordBytes
	}
	if h.max == 0 {
		h.max = DefaultMaxPasswordBytes
	}
	if h.min < 1 || h.max < h.min {
		return nil, errors.New("invalid password length bounds")
	}
	return h, nil
}

// Hash returns a PHC argon2id string with a fresh random salt. The
// plaintext is taken as raw bytes, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < h.min || len(password) > h.max {
		return "", fmt.Errorf("%w: must be %d to %d bytes", ErrPasswordLength, h.min, h.max)
	}

	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return phc{cost: h.cost, salt: salt, sum: h.derive(password, salt, h.cost, h.keyLen)}.String(), nil
}

// Verify dispatches on the hash prefix. A mismatch is (false, nil);
// malformed hashes and oversized plaintexts are errors.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if len(password) > h.max {
		return false, ErrPasswordLength
	}

	switch {
	case isBcrypt(encodedHash):
		if len(password) > bcryptMaxLen {
			return false, ErrPasswordLength
		}
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	case strings.HasPrefix(encodedHash, phcPrefix):
		p, err := decodePHC(encodedHash)
		if err != nil {
			return false, err
		}
		got := h.derive(password, p.salt, p.cost, uint32(len(p.sum)))
		return subtle.ConstantTimeCompare(got, p.sum) == 1, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade reports whether encodedHash should be replaced after the next
// successful sign-in: every bcrypt hash, and argon2id hashes with a weaker
// cost or a different digest length than the current config.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}
	if !strings.HasPrefix(encodedHash, phcPrefix) {
		return false, ErrUnsupportedHash
	}
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return p.weakerThan(h.cost) || uint32(len(p.sum)) != h.keyLen, nil
}

func (h *Hasher) derive(password string, salt []byte, c cost, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, c.passes, c.memory, c.threads, keyLen)
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
