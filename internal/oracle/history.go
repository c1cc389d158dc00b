package oracle

import (
	"math/big"

	"github.com/eigerco/appealproxy/internal/crypto"
)

// HistoryEntry is one link of a question's answer history.
type HistoryEntry struct {
	PreviousHash crypto.Hash
	Answer       crypto.Hash
	Bond         *big.Int
	Answerer     crypto.Address
	IsCommitment bool
}

// Hash chains the entry onto PreviousHash:
// keccak256(previous ‖ answer ‖ bond as uint256 ‖ answerer ‖ isCommitment).
func (e HistoryEntry) Hash() crypto.Hash {
	return HistoryHash(e.PreviousHash, e.Answer, e.Bond, e.Answerer, e.IsCommitment)
}

func HistoryHash(previous, answer crypto.Hash, bond *big.Int, answerer crypto.Address, isCommitment bool) crypto.Hash {
	buf := make([]byte, 0, 3*crypto.HashSize+crypto.AddressSize+1)
	buf = append(buf, previous[:]...)
	buf = append(buf, answer[:]...)

	var word crypto.Hash
	if bond != nil {
		word = crypto.HashFromBig(bond)
	}
	buf = append(buf, word[:]...)
	buf = append(buf, answerer[:]...)
	if isCommitment {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return crypto.KeccakData(buf)
}
