package safemath

import (
	"errors"
	"math/big"
	"math/bits"
)

var (
	ErrOverflow       = errors.New("number overflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// MaxUint256 is 2^256 - 1. It is shared, use MaxUint256Copy for a mutable value.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func MaxUint256Copy() *big.Int {
	return new(big.Int).Set(MaxUint256)
}

func Add64(a, b uint64) (uint64, bool) {
	v, carry := bits.Add64(a, b, 0)
	return v, carry == 0
}

// InRange reports whether v fits an unsigned 256 bit word.
func InRange(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 256
}

func Add256(a, b *big.Int) (*big.Int, bool) {
	v := new(big.Int).Add(a, b)
	return v, InRange(v)
}

func Sub256(a, b *big.Int) (*big.Int, bool) {
	v := new(big.Int).Sub(a, b)
	return v, InRange(v)
}

func Mul256(a, b *big.Int) (*big.Int, bool) {
	v := new(big.Int).Mul(a, b)
	return v, InRange(v)
}

// SubCap returns a - b, or zero when b > a.
func SubCap(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(a, b)
}

// MulDiv returns floor(a * b / c). The intermediate product must fit 256 bits.
func MulDiv(a, b, c *big.Int) (*big.Int, error) {
	if c.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	p, ok := Mul256(a, b)
	if !ok {
		return nil, ErrOverflow
	}
	return p.Quo(p, c), nil
}

// Min returns a copy of the smaller value.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
