package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/roach88/sibr/internal/model"
)

// Domain prefix for object identity.
// Version suffix enables future algorithm migration.
const DomainObject = "sibr/object/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator prevents domain/data boundary ambiguity
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Sum canonicalizes raw and returns its content hash along with the
// canonical bytes. Callers store the canonical bytes, never raw.
func Sum(raw []byte) (model.Hash, []byte, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", nil, err
	}
	return model.Hash(hashWithDomain(DomainObject, canonical)), canonical, nil
}

// Hash returns only the content hash of raw.
func Hash(raw []byte) (model.Hash, error) {
	h, _, err := Sum(raw)
	return h, err
}

// MustHash is like Hash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHash(raw []byte) model.Hash {
	h, err := Hash(raw)
	if err != nil {
		panic(err)
	}
	return h
}
