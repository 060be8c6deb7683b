package token_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jwillz7667/verbio-auth/token"
)

func TestNewOpaque(t *testing.T) {
	plaintext, hash, err := token.NewOpaque()
	require.NoError(t, err)
	require.Len(t, plaintext, 64) // 32 random bytes, hex encoded
	require.NotEqual(t, plaintext, hash)

	// The digest is deterministic so the store can be keyed by it.
	require.Equal(t, hash, token.HashOpaque(plaintext))

	second, _, err := token.NewOpaque()
	require.NoError(t, err)
	require.NotEqual(t, plaintext, second)
}
