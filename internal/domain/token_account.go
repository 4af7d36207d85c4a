package domain

// AccountKind distinguishes user wallets from market escrow accounts.
type AccountKind uint8

const (
	AccountWallet AccountKind = iota // a user's spendable balance
	AccountEscrow                    // tokens held for one market's bettors
)

// String returns "wallet" or "escrow".
func (k AccountKind) String() string {
	switch k {
	case AccountWallet:
		return "wallet"
	case AccountEscrow:
		return "escrow"
	default:
		return "unknown"
	}
}

// IsValid reports whether k is a known kind.
func (k AccountKind) IsValid() bool {
	return k == AccountWallet || k == AccountEscrow
}

// TokenAccount is a token balance. Wallets are keyed by the owner's pubkey,
// escrows by the market's derived escrow address.
type TokenAccount struct {
	Address Pubkey
	Kind    AccountKind
	Amount  uint64 // base units
}
