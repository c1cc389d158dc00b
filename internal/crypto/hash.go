package crypto

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Hash is a 32 byte word. It doubles as the oracle's question id, answer and
// history hash type.
type Hash [HashSize]byte

// KeccakData hashes the input data using Keccak-256
func KeccakData(data []byte) Hash {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	hashed := hash.Sum(nil)

	var result Hash
	copy(result[:], hashed)
	return result
}

// HashFromBig left pads v into a 32 byte big-endian word. v must fit 256 bits.
func HashFromBig(v *big.Int) Hash {
	var h Hash
	v.FillBytes(h[:])
	return h
}

func (h Hash) Big() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	b, err := decodeHex(string(text), HashSize)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	copy(h[:], b)
	return nil
}

// ParseHash decodes a 0x prefixed or bare hex string of exactly 32 bytes.
func ParseHash(s string) (Hash, error) {
	var h Hash
	err := h.UnmarshalText([]byte(s))
	return h, err
}

func decodeHex(s string, size int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("invalid length %d, expected %d", len(b), size)
	}
	return b, nil
}
