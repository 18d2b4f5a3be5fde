// Package cryptox computes content digests used to recognise repeated saves
// of an unchanged snapshot.
package cryptox

import (
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Size is the digest length in bytes.
const Size = blake2b.Size256

// Digest is a BLAKE2b-256 content hash.
type Digest [Size]byte

// Sum returns the digest of data.
func Sum(data []byte) Digest {
	return Digest(blake2b.Sum256(data))
}

// SumParts hashes parts as one stream, each part prefixed by its length so
// that ("ab","c") and ("a","bc") differ.
func SumParts(parts ...[]byte) Digest {
	h := newHash()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		_, _ = h.Write(n[:])
		_, _ = h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Short is the first 8 hex characters, for logs.
func (d Digest) Short() string { return d.String()[:8] }

func newHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only returned for keys longer than 64 bytes
		panic(err)
	}
	return h
}
