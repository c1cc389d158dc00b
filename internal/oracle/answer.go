package oracle

import (
	"math/big"

	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/safemath"
)

var (
	// InvalidAnswer is reported when the arbitrator refused to arbitrate (ruling 0).
	InvalidAnswer = crypto.HashFromBig(safemath.MaxUint256)
	// AnsweredTooSoon is reported for the maximum ruling.
	AnsweredTooSoon = crypto.HashFromBig(new(big.Int).Sub(safemath.MaxUint256, big.NewInt(1)))
)

// RulingToAnswer maps an arbitrator ruling onto the oracle's answer domain.
// Ruling 0 is reserved for "refuse to arbitrate" and every other ruling is
// the answer shifted by one. tooSoon is set for the maximum ruling, whose
// answer must not be credited to any answerer.
func RulingToAnswer(ruling *big.Int) (answer crypto.Hash, tooSoon bool) {
	switch {
	case ruling.Sign() == 0:
		return InvalidAnswer, false
	case ruling.Cmp(safemath.MaxUint256) >= 0:
		return AnsweredTooSoon, true
	default:
		return crypto.HashFromBig(new(big.Int).Sub(ruling, big.NewInt(1))), false
	}
}
