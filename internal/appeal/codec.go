package appeal

import (
	"encoding/json"
	"math/big"

	"github.com/eigerco/appealproxy/internal/crypto"
)

// UnmarshalJSON fills in empty tables so a decoded round is ready for
// mutation.
func (r *Round) UnmarshalJSON(b []byte) error {
	type plain Round
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Round(p)

	if r.PaidFees == nil {
		r.PaidFees = make(map[string]*big.Int)
	}
	if r.Contributions == nil {
		r.Contributions = make(map[crypto.Address]map[string]*big.Int)
	}
	if r.Withdrawn == nil {
		r.Withdrawn = make(map[crypto.Address]map[string]bool)
	}
	if r.FeeRewards == nil {
		r.FeeRewards = new(big.Int)
	}
	if r.AppealCost == nil {
		r.AppealCost = new(big.Int)
	}
	return nil
}

func (r *Request) UnmarshalJSON(b []byte) error {
	type plain Request
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Request(p)
	if r.Ruling == nil {
		r.Ruling = new(big.Int)
	}
	return nil
}
