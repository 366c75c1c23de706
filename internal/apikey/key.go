// Package apikey resolves the caller's presented credential to a key
// record and records per-key usage counters (spec §4.6).
package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by a Store when no key matches the
// presented hash.
var ErrKeyNotFound = errors.New("apikey: key not found")

// Key is one resolved API key record.
type Key struct {
	ID           string
	Disabled     bool
	Wildcard     bool
	RequestCount int64
	InputTokens  int64
	OutputTokens int64
	LastUsedAt   time.Time
}

// HashToken computes the lookup hash for a presented token. The salt is
// a server-wide secret (a "pepper"), not a per-key random salt, so that
// lookup stays O(1) on the hash rather than a linear scan over
// per-key salts.
func HashToken(salt, token string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
