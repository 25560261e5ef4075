// Package password hashes profile passwords with Argon2id in the PHC string
// format ($argon2id$v=19$m=..,t=..,p=..$salt$hash).
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost parameters. MemoryKiB is in kibibytes.
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   int
}

// Default is used for every new hash. Hashes made with other parameters
// still verify and are reported as stale so the caller can upgrade them.
var Default = Params{Time: 1, MemoryKiB: 64 * 1024, Threads: 4, KeyLen: 32, SaltLen: 16}

var errMalformed = errors.New("password: malformed hash")

var b64 = base64.RawStdEncoding

func Hash(plain string) (string, error) {
	return HashWith(Default, plain)
}

func HashWith(p Params, plain string) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Time, p.Threads, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether plain matches encoded, and whether encoded was
// made with parameters other than Default.
func Verify(plain, encoded string) (ok, stale bool) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, false
	}
	check := argon2.IDKey([]byte(plain), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
	if subtle.ConstantTimeCompare(key, check) != 1 {
		return false, false
	}
	return true, p.Time != Default.Time || p.MemoryKiB != Default.MemoryKiB ||
		p.Threads != Default.Threads || p.KeyLen != Default.KeyLen || len(salt) != Default.SaltLen
}

func decode(encoded string) (Params, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return Params{}, nil, nil, errMalformed
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, errMalformed
	}

	var p Params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Threads); err != nil {
		return Params{}, nil, nil, errMalformed
	}
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return Params{}, nil, nil, errMalformed
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, errMalformed
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, errMalformed
	}
	p.SaltLen = len(salt)
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}
