package memory

import (
	"context"
	"errors"
	"testing"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

func TestTokenAccountStore_InsertUpdateGet(t *testing.T) {
	store := NewTokenAccountStore()
	ctx := context.Background()

	wallet := &domain.TokenAccount{Address: domain.Pubkey{2}, Kind: domain.AccountWallet, Amount: 100}
	if err := store.Insert(ctx, wallet); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, wallet); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.TokenAccount{Kind: domain.AccountWallet}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero address, got %v", err)
	}

	// Kind is fixed at creation
	if err := store.Update(ctx, &domain.TokenAccount{Address: wallet.Address, Kind: domain.AccountEscrow, Amount: 40}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := store.GetByAddress(ctx, wallet.Address)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.Amount != 40 || got.Kind != domain.AccountWallet {
		t.Errorf("Unexpected account after update: %+v", got)
	}

	if err := store.Update(ctx, &domain.TokenAccount{Address: domain.Pubkey{9}}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := store.Insert(ctx, &domain.TokenAccount{Address: domain.Pubkey{1}, Kind: domain.AccountEscrow, Amount: 5}); err != nil {
		t.Fatalf("Insert escrow failed: %v", err)
	}
	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 || all[0].Address != (domain.Pubkey{1}) {
		t.Errorf("Expected 2 accounts ordered by address, got %+v", all)
	}
}

func TestLedger_AccountsCommitWithRecords(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	payer := &domain.TokenAccount{Address: domain.Pubkey{20}, Kind: domain.AccountWallet, Amount: 1_000_000}
	if err := ledger.Accounts().Insert(ctx, payer); err != nil {
		t.Fatalf("Insert wallet failed: %v", err)
	}
	m := testMarket(1, "DOGE_USD", 1_700_000_000)
	if err := ledger.Markets().Insert(ctx, m); err != nil {
		t.Fatalf("Insert market failed: %v", err)
	}

	escrow := domain.Pubkey{0xE5}
	boom := errors.New("boom")
	err := ledger.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.Accounts().Update(ctx, &domain.TokenAccount{Address: payer.Address, Amount: 0}); err != nil {
			return err
		}
		if err := tx.Accounts().Insert(ctx, &domain.TokenAccount{Address: escrow, Kind: domain.AccountEscrow, Amount: 1_000_000}); err != nil {
			return err
		}
		all, err := tx.Accounts().GetAll(ctx)
		if err != nil {
			return err
		}
		if len(all) != 2 {
			t.Errorf("Expected staged escrow visible in tx, got %d accounts", len(all))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	// Nothing from the failed transaction is visible
	got, err := ledger.Accounts().GetByAddress(ctx, payer.Address)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.Amount != 1_000_000 {
		t.Errorf("Wallet changed by rolled back tx: %d", got.Amount)
	}
	if _, err := ledger.Accounts().GetByAddress(ctx, escrow); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected escrow absent after rollback, got %v", err)
	}
}
