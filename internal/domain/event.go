package domain

// EventKind identifies a committed ledger mutation.
type EventKind string

const (
	EventMarketCreated   EventKind = "MARKET_CREATED"
	EventBetPlaced       EventKind = "BET_PLACED"
	EventMarketSettled   EventKind = "MARKET_SETTLED"
	EventWinningsClaimed EventKind = "WINNINGS_CLAIMED"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a valid value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventMarketCreated, EventBetPlaced, EventMarketSettled, EventWinningsClaimed:
		return true
	}
	return false
}

// LedgerEvent records one committed mutation. It feeds the activity log
// (append-only) and the event bus.
type LedgerEvent struct {
	EventID    string    `json:"event_id"` // uuid
	Kind       EventKind `json:"kind"`
	Market     Pubkey    `json:"market"`
	MarketName string    `json:"market_name"`
	Actor      Pubkey    `json:"actor"`            // creator, bettor or claimant
	Amount     uint64    `json:"amount,omitempty"` // stake for BET_PLACED, payout for WINNINGS_CLAIMED
	Side       Side      `json:"side,omitempty"`   // prediction or settled outcome
	YesAmount  uint64    `json:"yes_amount"`       // pool snapshot after the mutation
	NoAmount   uint64    `json:"no_amount"`
	Timestamp  int64     `json:"timestamp"` // unix seconds, ledger clock
}
