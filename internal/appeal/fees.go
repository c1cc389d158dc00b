package appeal

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/eigerco/appealproxy/internal/safemath"
)

// Multipliers are fixed-point fractions over Denominator, e.g. 3000/10000 = 30%.
type Multipliers struct {
	Winner            uint64 `json:"winner" yaml:"winner"`
	Loser             uint64 `json:"loser" yaml:"loser"`
	LoserAppealPeriod uint64 `json:"loser_appeal_period" yaml:"loser_appeal_period"`
	Denominator       uint64 `json:"denominator" yaml:"denominator"`
}

func DefaultMultipliers() Multipliers {
	return Multipliers{
		Winner:            3000,
		Loser:             7000,
		LoserAppealPeriod: 5000,
		Denominator:       10000,
	}
}

func (m Multipliers) Validate() error {
	if m.Denominator == 0 {
		return fmt.Errorf("%w: zero denominator", ErrInvalidMultipliers)
	}
	if m.LoserAppealPeriod > m.Denominator {
		return fmt.Errorf("%w: loser appeal period %d exceeds the full period", ErrInvalidMultipliers, m.LoserAppealPeriod)
	}
	return nil
}

// RequiredFee is the amount a ruling has to collect in a round:
// appealCost + floor(appealCost * multiplier / denominator), where the
// multiplier depends on whether the ruling is the arbitrator's current one.
func (m Multipliers) RequiredFee(appealCost *big.Int, isCurrentWinner bool) (*big.Int, error) {
	multiplier := m.Loser
	if isCurrentWinner {
		multiplier = m.Winner
	}

	stake, err := safemath.MulDiv(appealCost, new(big.Int).SetUint64(multiplier), new(big.Int).SetUint64(m.Denominator))
	if err != nil {
		return nil, fmt.Errorf("required fee: %w", err)
	}
	total, ok := safemath.Add256(appealCost, stake)
	if !ok {
		return nil, fmt.Errorf("required fee: %w", safemath.ErrOverflow)
	}
	return total, nil
}

// LoserDeadline is the end of the part of the appeal period during which
// rulings other than the current one may be funded.
func (m Multipliers) LoserDeadline(start, end time.Time) time.Time {
	period := end.Sub(start)
	if period <= 0 {
		return start
	}
	part, err := safemath.MulDiv(big.NewInt(int64(period)), new(big.Int).SetUint64(m.LoserAppealPeriod), new(big.Int).SetUint64(m.Denominator))
	if err != nil || !part.IsInt64() {
		return start.Add(time.Duration(math.MaxInt64))
	}
	return start.Add(time.Duration(part.Int64()))
}
