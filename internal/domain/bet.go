package domain

// Bet is one user's stake and chosen side within a market.
// At most one Bet exists per (market, user).
type Bet struct {
	Address    Pubkey // derived from (Market, User)
	Market     Pubkey // owning market address
	User       Pubkey // bettor
	Amount     uint64 // stake, immutable
	Prediction bool   // chosen side, immutable
	Claimed    bool   // false -> true once winnings are released
	Bump       uint8  // address derivation bump
	PlacedAt   int64  // unix seconds
	ClaimedAt  int64  // unix seconds, 0 until claimed
}

// Side returns the bet's side.
func (b *Bet) Side() Side {
	return SideOf(b.Prediction)
}
