package settlement

import (
	"math/big"

	"github.com/shopspring/decimal"

	"memecoin-prediction-market/internal/domain"
)

// quotePrecision is the number of decimal places kept in shares and multipliers.
const quotePrecision = 6

// Quote is a read-only view of a market's pools.
type Quote struct {
	YesAmount uint64
	NoAmount  uint64

	// Fraction of total stake on each side (implied probability). Zero when the market is empty.
	YesShare decimal.Decimal
	NoShare  decimal.Decimal

	// Gross payout per unit staked if that side wins, assuming no further bets.
	// Zero when the side has no stake.
	YesMultiplier decimal.Decimal
	NoMultiplier  decimal.Decimal
}

// QuoteMarket computes pool shares and implied payout multipliers for m.
func QuoteMarket(m *domain.Market) Quote {
	yes := decimalFromUint64(m.YesAmount)
	no := decimalFromUint64(m.NoAmount)
	total := yes.Add(no)

	q := Quote{
		YesAmount:     m.YesAmount,
		NoAmount:      m.NoAmount,
		YesShare:      decimal.Zero,
		NoShare:       decimal.Zero,
		YesMultiplier: decimal.Zero,
		NoMultiplier:  decimal.Zero,
	}
	if total.IsZero() {
		return q
	}

	q.YesShare = yes.DivRound(total, quotePrecision)
	q.NoShare = no.DivRound(total, quotePrecision)
	if !yes.IsZero() {
		q.YesMultiplier = total.DivRound(yes, quotePrecision)
	}
	if !no.IsZero() {
		q.NoMultiplier = total.DivRound(no, quotePrecision)
	}
	return q
}

// FormatTokenAmount renders an amount in base units as a UI amount with the
// given number of decimals (e.g. 1_000_000 with 6 decimals -> "1.000000").
func FormatTokenAmount(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).StringFixed(decimals)
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
