package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

const opaqueTokenLength = 32 // 32 bytes = 256 bits

// NewOpaque generates a high-entropy opaque refresh credential and the digest
// under which it is stored. The plaintext is handed to the caller exactly once;
// only the hash ever reaches storage or logs.
func NewOpaque() (plaintext, hash string, err error) {
	tokenBytes := make([]byte, opaqueTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", errors.Wrap(err, "failed to generate random bytes")
	}

	plaintext = hex.EncodeToString(tokenBytes)
	return plaintext, HashOpaque(plaintext), nil
}

// HashOpaque returns the deterministic one-way digest of an opaque token.
// Deterministic so the store can be keyed by it, one-way so a leaked database
// row cannot be replayed as a credential.
func HashOpaque(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
