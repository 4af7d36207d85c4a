package settlement

import (
	"math/bits"

	"memecoin-prediction-market/internal/domain"
)

// Payout returns the amount owed to a winning bet on a settled market:
//
//	amount + floor(amount * losingPool / winningPool)
//
// The product is computed in 128 bits. The result never exceeds
// amount + losingPool, so the sum over all winners stays within the pool.
func Payout(m *domain.Market, b *domain.Bet) (uint64, error) {
	winning, losing := m.Pools()
	if winning == 0 {
		return 0, domain.ErrNoWinningPool
	}

	share, err := mulDiv(b.Amount, losing, winning)
	if err != nil {
		return 0, err
	}

	total, carry := bits.Add64(b.Amount, share, 0)
	if carry != 0 {
		return 0, domain.ErrAmountOverflow
	}
	return total, nil
}

// AddStake returns pool + amount, failing on overflow.
func AddStake(pool, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(pool, amount, 0)
	if carry != 0 {
		return 0, domain.ErrAmountOverflow
	}
	return sum, nil
}

// mulDiv computes floor(a * b / d) with a 128-bit intermediate product.
func mulDiv(a, b, d uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	// bits.Div64 panics when the quotient does not fit in 64 bits.
	if hi >= d {
		return 0, domain.ErrAmountOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}
