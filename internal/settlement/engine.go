// Package settlement holds the pure decision rules of the market: bet admission,
// settlement validity, claim authorization and payout math. Nothing in this
// package mutates state or reads a clock.
package settlement

import (
	"memecoin-prediction-market/internal/domain"
)

// ValidateExpiry checks a new market's expiry against its creation time.
func ValidateExpiry(expiryTimestamp, now int64) error {
	if expiryTimestamp <= now {
		return domain.ErrInvalidExpiry
	}
	return nil
}

// AdmitBet decides whether a stake of amount may enter market m at now.
// Checks, in order: expiry, settled flag, zero amount. Both the expiry and
// the settled checks run even though a settled market is always expired.
func AdmitBet(m *domain.Market, amount uint64, now int64) error {
	if m.IsExpired(now) {
		return domain.ErrMarketExpired
	}
	if m.Settled {
		return domain.ErrMarketAlreadySettled
	}
	if amount == 0 {
		return domain.ErrZeroAmount
	}
	return nil
}

// ValidateSettle decides whether caller may settle m at now.
// Checks, in order: creator identity, expiry, settled flag.
func ValidateSettle(m *domain.Market, caller domain.Pubkey, now int64) error {
	if caller != m.Creator {
		return domain.ErrUnauthorized
	}
	if now < m.ExpiryTimestamp {
		return domain.ErrNotYetExpired
	}
	if m.Settled {
		return domain.ErrAlreadySettled
	}
	return nil
}

// AuthorizeClaim decides whether caller may withdraw winnings for bet b and
// returns the payout owed. The caller of AuthorizeClaim is responsible for
// releasing the payout and marking the bet claimed as one unit.
func AuthorizeClaim(m *domain.Market, b *domain.Bet, caller domain.Pubkey) (uint64, error) {
	if caller != b.User {
		return 0, domain.ErrUnauthorized
	}
	if !m.Settled {
		return 0, domain.ErrMarketNotSettled
	}
	if b.Claimed {
		return 0, domain.ErrAlreadyClaimed
	}
	if b.Prediction != m.Outcome {
		return 0, domain.ErrNotAWinner
	}
	return Payout(m, b)
}
