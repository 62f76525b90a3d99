package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcPrefix = "$argon2id$"

var errMalformedHash = errors.New("malformed argon2id hash")

// cost is the argon2id work factor recorded in a hash.
type cost struct {
	memory  uint32
	passes  uint32
	threads uint8
}

// weakerThan reports whether c does less work than target on any axis.
func (c cost) weakerThan(target cost) bool {
	return c.memory < target.memory || c.passes < target.passes || c.threads < target.threads
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$sum string.
type phc struct {
	cost
	salt []byte
	sum  []byte
}

func (p phc) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, p.memory, p.passes, p.threads,
		enc.EncodeToString(p.salt), enc.EncodeToString(p.sum))
}

func decodePHC(s string) (phc, error) {
	rest, ok := strings.CutPrefix(s, phcPrefix)
	if !ok {
		return phc{}, errMalformedHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return phc{}, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return phc{}, fmt.Errorf("%w: version %q", errMalformedHash, fields[0])
	}

	var p phc
	n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.passes, &p.threads)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.passes, p.threads) != fields[1] {
		return phc{}, fmt.Errorf("%w: parameters %q", errMalformedHash, fields[1])
	}
	if p.memory < minMemoryKB || p.passes < 1 || p.threads < 1 {
		return phc{}, fmt.Errorf("%w: parameters below minimum", errMalformedHash)
	}

	if p.salt, err = decodeB64(fields[2]); err != nil || len(p.salt) < minSaltLength {
		return phc{}, fmt.Errorf("%w: salt", errMalformedHash)
	}
	if p.sum, err = decodeB64(fields[3]); err != nil || len(p.sum) == 0 {
		return phc{}, fmt.Errorf("%w: digest", errMalformedHash)
	}
	return p, nil
}

// decodeB64 accepts both padded and unpadded standard base64; older records
// were written padded.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
