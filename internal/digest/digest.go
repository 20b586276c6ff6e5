// Package digest computes SHA-256 content hashes for assets and bundles.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Digest is a fixed 256-bit hash.
type Digest [32]byte

// OfBytes hashes raw bytes.
func OfBytes(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// OfString hashes the UTF-8 bytes of s.
func OfString(s string) Digest {
	return Digest(sha256.Sum256([]byte(s)))
}

// OfPath hashes the bytes of a path in slash form, so hashes agree across
// operating systems.
func OfPath(p string) Digest {
	return OfString(filepath.ToSlash(p))
}

// Hex renders the digest as lower-case hex.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Combine hashes the concatenation of the given digests: H(d1 || d2 ...).
// Callers must pass them in a deterministic order.
func Combine(parts ...Digest) Digest {
	h := sha256.New()
	for _, d := range parts {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// CombineHex hashes the concatenation of hex strings, which is how bundle
// names are derived from member content hashes.
func CombineHex(parts ...string) Digest {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Truncate returns the first n Unicode scalar values of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
