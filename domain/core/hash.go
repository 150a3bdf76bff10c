package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
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

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Domain-specific hash types
type (
	Fingerprint Hash
	CodeVersion Hash
)

// Constructors
func NewFingerprint(data []byte) Fingerprint { return Fingerprint(NewHash(data)) }
func NewCodeVersion(data []byte) CodeVersion { return CodeVersion(NewHash(data)) }

// String conversions
func (h Fingerprint) String() string { return Hash(h).String() }
func (h CodeVersion) String() string { return Hash(h).String() }

// ComputeFingerprint hashes a key-value description of a run configuration.
// Keys are sorted so the fingerprint is independent of map iteration order.
func ComputeFingerprint(parts map[string]interface{}) Fingerprint {
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("%v", parts[key]))
	}

	return NewFingerprint([]byte(data.String()))
}
