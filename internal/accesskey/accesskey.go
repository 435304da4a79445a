// Package accesskey derives the bearer credential that gates remote reads
// and writes. The secret never leaves the device; only its SHA-256 digest
// is sent.
package accesskey

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
)

var ErrMissingSecret = errors.New("accesskey: secret not configured")

// Key is a lowercase hex SHA-256 digest.
type Key string

var keyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Derive hashes secret. An empty secret is ErrMissingSecret.
func Derive(secret string) (Key, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	sum := sha256.Sum256([]byte(secret))
	return Key(hex.EncodeToString(sum[:])), nil
}

// Valid reports whether raw has the shape of a derived key.
func Valid(raw string) bool {
	return keyPattern.MatchString(raw)
}

func (k Key) String() string {
	return string(k)
}

// Short is a display prefix, never enough to use as the key.
func (k Key) Short() string {
	if len(k) < 8 {
		return string(k)
	}
	return string(k[:8])
}
