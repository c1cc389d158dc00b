package testutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/stretchr/testify/require"
)

func RandomHash(t *testing.T) crypto.Hash {
	hash := make([]byte, crypto.HashSize)
	_, err := rand.Read(hash)
	require.NoError(t, err)
	return crypto.Hash(hash)
}

func RandomAddress(t *testing.T) crypto.Address {
	addr := make([]byte, crypto.AddressSize)
	_, err := rand.Read(addr)
	require.NoError(t, err)
	return crypto.Address(addr)
}

func RandomED25519Key(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

// Big parses a decimal literal, failing the test on malformed input.
func Big(t *testing.T, s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "invalid integer %q", s)
	return v
}
