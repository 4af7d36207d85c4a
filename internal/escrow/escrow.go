// Package escrow moves staked tokens between user wallets and market escrow
// accounts. Transfers act on a storage transaction, so balances commit or
// roll back together with the bet or claim that moved them.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"memecoin-prediction-market/internal/address"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

var (
	// ErrInsufficientFunds is returned when a payer's balance cannot cover a lock.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientEscrow is returned when a market's escrow cannot cover a release.
	ErrInsufficientEscrow = errors.New("insufficient escrow balance")

	// ErrBalanceOverflow is returned when a credit would wrap a balance.
	ErrBalanceOverflow = errors.New("balance overflow")
)

// Lock moves amount from payer's wallet into the escrow account escrowAddr.
func Lock(ctx context.Context, accounts storage.TokenAccountStore, escrowAddr, payer domain.Pubkey, amount uint64) error {
	if err := debit(ctx, accounts, payer, amount, ErrInsufficientFunds); err != nil {
		return fmt.Errorf("lock %d from %s: %w", amount, payer, err)
	}
	if err := credit(ctx, accounts, escrowAddr, domain.AccountEscrow, amount); err != nil {
		return fmt.Errorf("lock into escrow %s: %w", escrowAddr, err)
	}
	return nil
}

// Release moves amount from the escrow account escrowAddr to payee's wallet.
func Release(ctx context.Context, accounts storage.TokenAccountStore, escrowAddr, payee domain.Pubkey, amount uint64) error {
	if err := debit(ctx, accounts, escrowAddr, amount, ErrInsufficientEscrow); err != nil {
		return fmt.Errorf("release %d from escrow %s: %w", amount, escrowAddr, err)
	}
	if err := credit(ctx, accounts, payee, domain.AccountWallet, amount); err != nil {
		return fmt.Errorf("release to %s: %w", payee, err)
	}
	return nil
}

// debit subtracts amount from addr, failing with short when the balance is too low.
func debit(ctx context.Context, accounts storage.TokenAccountStore, addr domain.Pubkey, amount uint64, short error) error {
	a, err := accounts.GetByAddress(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		if amount == 0 {
			return nil
		}
		return fmt.Errorf("%w (balance 0)", short)
	}
	if err != nil {
		return err
	}
	if a.Amount < amount {
		return fmt.Errorf("%w (balance %d)", short, a.Amount)
	}
	a.Amount -= amount
	return accounts.Update(ctx, a)
}

// credit adds amount to addr, opening the account with kind if it does not exist.
func credit(ctx context.Context, accounts storage.TokenAccountStore, addr domain.Pubkey, kind domain.AccountKind, amount uint64) error {
	a, err := accounts.GetByAddress(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return accounts.Insert(ctx, &domain.TokenAccount{Address: addr, Kind: kind, Amount: amount})
	}
	if err != nil {
		return err
	}
	if a.Amount+amount < a.Amount {
		return ErrBalanceOverflow
	}
	a.Amount += amount
	return accounts.Update(ctx, a)
}

// Allocation is an initial wallet balance.
type Allocation struct {
	Owner  domain.Pubkey
	Amount uint64
}

// Vault administers token balances held in a ledger.
type Vault struct {
	ledger    storage.Ledger
	programID domain.Pubkey
}

// NewVault creates a Vault over l. Escrow addresses are derived under
// programID, or address.DefaultProgramID when it is zero.
func NewVault(l storage.Ledger, programID domain.Pubkey) *Vault {
	if programID.IsZero() {
		programID = address.DefaultProgramID
	}
	return &Vault{ledger: l, programID: programID}
}

var errFunded = errors.New("ledger already holds token accounts")

// Genesis funds wallets on a ledger that holds no token accounts yet and
// reports whether it did. Once any account exists it mints nothing, so
// restarts and concurrent processes sharing the ledger fund it exactly once.
func (v *Vault) Genesis(ctx context.Context, allocations []Allocation) (bool, error) {
	if len(allocations) == 0 {
		return false, nil
	}

	totals := make(map[domain.Pubkey]uint64, len(allocations))
	for _, a := range allocations {
		if a.Owner.IsZero() {
			return false, fmt.Errorf("genesis: %w", storage.ErrInvalidInput)
		}
		next := totals[a.Owner] + a.Amount
		if next < totals[a.Owner] {
			return false, fmt.Errorf("genesis %s: %w", a.Owner, ErrBalanceOverflow)
		}
		totals[a.Owner] = next
	}
	owners := make([]domain.Pubkey, 0, len(totals))
	for owner := range totals {
		owners = append(owners, owner)
	}
	// A fixed insert order makes concurrent genesis runs collide on the first row.
	sort.Slice(owners, func(i, j int) bool {
		return string(owners[i][:]) < string(owners[j][:])
	})

	err := v.ledger.WithinTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.Accounts().GetAll(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return errFunded
		}
		for _, owner := range owners {
			a := &domain.TokenAccount{Address: owner, Kind: domain.AccountWallet, Amount: totals[owner]}
			if err := tx.Accounts().Insert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errFunded), errors.Is(err, storage.ErrDuplicateKey):
		return false, nil
	default:
		return false, fmt.Errorf("genesis: %w", err)
	}
}

// Mint credits amount to owner's wallet.
func (v *Vault) Mint(ctx context.Context, owner domain.Pubkey, amount uint64) error {
	err := v.ledger.WithinTx(ctx, func(tx storage.Tx) error {
		return credit(ctx, tx.Accounts(), owner, domain.AccountWallet, amount)
	})
	if err != nil {
		return fmt.Errorf("mint to %s: %w", owner, err)
	}
	return nil
}

// Balance returns owner's wallet balance.
func (v *Vault) Balance(ctx context.Context, owner domain.Pubkey) (uint64, error) {
	return v.amount(ctx, owner)
}

// EscrowBalance returns the tokens held for market.
func (v *Vault) EscrowBalance(ctx context.Context, market domain.Pubkey) (uint64, error) {
	addr, _, err := address.EscrowAddress(v.programID, market)
	if err != nil {
		return 0, fmt.Errorf("derive escrow address: %w", err)
	}
	return v.amount(ctx, addr)
}

func (v *Vault) amount(ctx context.Context, addr domain.Pubkey) (uint64, error) {
	a, err := v.ledger.Accounts().GetByAddress(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

// Total returns the sum of all wallet and escrow balances. Transfers never
// change it; only Genesis and Mint do.
func (v *Vault) Total(ctx context.Context) (uint64, error) {
	all, err := v.ledger.Accounts().GetAll(ctx)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, a := range all {
		if total+a.Amount < total {
			return 0, ErrBalanceOverflow
		}
		total += a.Amount
	}
	return total, nil
}

// Holders returns every wallet with a non-zero balance, ordered by address.
func (v *Vault) Holders(ctx context.Context) ([]*domain.TokenAccount, error) {
	all, err := v.ledger.Accounts().GetAll(ctx)
	if err != nil {
		return nil, err
	}
	holders := make([]*domain.TokenAccount, 0, len(all))
	for _, a := range all {
		if a.Kind == domain.AccountWallet && a.Amount > 0 {
			holders = append(holders, a)
		}
	}
	return holders, nil
}
