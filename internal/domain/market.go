package domain

// Market is the authoritative state of one binary prediction.
// Corresponds to the markets table / market account.
type Market struct {
	Address         Pubkey // derived from Name
	Name            string // immutable, 1..32 bytes
	Creator         Pubkey // sole settlement authority
	ExpiryTimestamp int64  // unix seconds; bets admitted strictly before this
	YesAmount       uint64 // total stake predicting true
	NoAmount        uint64 // total stake predicting false
	Settled         bool   // false -> true, never reverts
	Outcome         bool   // meaningful only when Settled
	Bump            uint8  // address derivation bump
	CreatedAt       int64  // unix seconds
}

// TotalStake returns YesAmount + NoAmount. The sum is validated on every
// increment, so it cannot wrap for a market that went through the ledger.
func (m *Market) TotalStake() uint64 {
	return m.YesAmount + m.NoAmount
}

// Pools returns the (winning, losing) pools for the settled outcome.
func (m *Market) Pools() (winning, losing uint64) {
	if m.Outcome {
		return m.YesAmount, m.NoAmount
	}
	return m.NoAmount, m.YesAmount
}

// IsExpired reports whether new bets are no longer admitted at now.
func (m *Market) IsExpired(now int64) bool {
	return now >= m.ExpiryTimestamp
}

// Side is the text form of a prediction.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// SideOf maps a boolean prediction to its side.
func SideOf(prediction bool) Side {
	if prediction {
		return SideYes
	}
	return SideNo
}

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideYes || s == SideNo
}
