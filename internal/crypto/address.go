package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Address identifies a party: requester, contributor, answerer or arbitrator.
type Address [AddressSize]byte

// AddressFromPublicKey derives an address from the last 20 bytes of the
// keccak hash of an ed25519 public key.
func AddressFromPublicKey(key ed25519.PublicKey) Address {
	h := KeccakData(key)
	var a Address
	copy(a[:], h[HashSize-AddressSize:])
	return a
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText makes Address usable as a JSON object key.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	b, err := decodeHex(string(text), AddressSize)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	copy(a[:], b)
	return nil
}

func ParseAddress(s string) (Address, error) {
	var a Address
	err := a.UnmarshalText([]byte(s))
	return a, err
}
