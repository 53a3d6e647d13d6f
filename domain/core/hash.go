package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex characters, enough for cache keys and logs.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// SourceVersion fingerprints the content of a loaded table.
type SourceVersion Hash

func NewSourceVersion(data []byte) SourceVersion { return SourceVersion(NewHash(data)) }

func (v SourceVersion) String() string { return Hash(v).String() }
func (v SourceVersion) Short() string  { return Hash(v).Short() }

// ComputeKeyHash hashes parts in the order given. Callers whose results depend on
// the order of a selection get distinct keys for distinct orders.
func ComputeKeyHash(parts []string) Hash {
	return NewHash([]byte(strings.Join(parts, "\x1f")))
}
