// Package main runs the DOGE_USD reference scenario against an in-memory
// ledger and prints the resulting market, bet and balance tables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"memecoin-prediction-market/internal/clock"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/escrow"
	"memecoin-prediction-market/internal/ledger"
	"memecoin-prediction-market/internal/logging"
	"memecoin-prediction-market/internal/settlement"
	"memecoin-prediction-market/internal/storage/memory"
)

// Fixed start time keeps the output deterministic.
const startTime = int64(1_700_000_000)

var (
	creator = domain.Pubkey{0xC0, 0x01}
	alice   = domain.Pubkey{0xA1}
	bob     = domain.Pubkey{0xB0}
	carol   = domain.Pubkey{0xCA}
)

var names = map[domain.Pubkey]string{
	creator: "creator",
	alice:   "alice",
	bob:     "bob",
	carol:   "carol",
}

func main() {
	decimals := flag.Int("decimals", 6, "Token decimals used for UI amounts")
	verbose := flag.Bool("verbose", false, "Log ledger operations")
	flag.Parse()

	logger := logging.Discard()
	if *verbose {
		logger = logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		logger.SetOutput(os.Stderr)
	}

	if err := run(context.Background(), os.Stdout, int32(*decimals), logger); err != nil {
		fmt.Fprintf(os.Stderr, "Scenario failed: %v\n", err)
		os.Exit(1)
	}
}

// run plays the scenario and writes its report to out.
func run(ctx context.Context, out io.Writer, decimals int32, logger logrus.FieldLogger) error {
	clk := clock.NewManual(startTime)
	store := memory.NewLedger()
	vault := escrow.NewVault(store, domain.Pubkey{})

	for _, holder := range []domain.Pubkey{alice, bob, carol} {
		if err := vault.Mint(ctx, holder, 10_000_000); err != nil {
			return err
		}
	}

	svc, err := ledger.New(ledger.Options{
		Ledger: store,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	step := func(format string, args ...any) {
		fmt.Fprintf(out, "-> "+format+"\n", args...)
	}
	amt := func(v uint64) string {
		return settlement.FormatTokenAmount(v, decimals)
	}

	fmt.Fprintln(out, "=== DOGE_USD scenario ===")

	m, err := svc.CreateMarket(ctx, ledger.CreateMarketRequest{
		Name:            "DOGE_USD",
		ExpiryTimestamp: startTime + 3600,
		Creator:         creator,
	})
	if err != nil {
		return fmt.Errorf("create market: %w", err)
	}
	step("creator opened %s at %s, expiring in 1h", m.Name, m.Address)

	if _, err := svc.PlaceBet(ctx, ledger.PlaceBetRequest{Market: "DOGE_USD", User: alice, Amount: 1_000_000, Prediction: true}); err != nil {
		return fmt.Errorf("alice bet: %w", err)
	}
	step("alice staked %s on YES", amt(1_000_000))

	if _, err := svc.PlaceBet(ctx, ledger.PlaceBetRequest{Market: "DOGE_USD", User: carol, Amount: 400_000, Prediction: false}); err != nil {
		return fmt.Errorf("carol bet: %w", err)
	}
	step("carol staked %s on NO", amt(400_000))

	clk.Advance(3601 * time.Second)

	_, err = svc.PlaceBet(ctx, ledger.PlaceBetRequest{Market: "DOGE_USD", User: bob, Amount: 500_000, Prediction: false})
	if !errors.Is(err, domain.ErrMarketExpired) {
		return fmt.Errorf("late bet: want %v, got %v", domain.ErrMarketExpired, err)
	}
	step("bob's late stake rejected: %s (%d)", domain.CodeOf(err).Name(), domain.CodeOf(err))

	if _, err := svc.Settle(ctx, ledger.SettleRequest{Market: "DOGE_USD", Outcome: true, Caller: creator}); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	step("creator settled DOGE_USD as YES")

	res, err := svc.Claim(ctx, ledger.ClaimRequest{Market: "DOGE_USD", Caller: alice})
	if err != nil {
		return fmt.Errorf("alice claim: %w", err)
	}
	step("alice claimed %s", amt(res.Payout))

	_, err = svc.Claim(ctx, ledger.ClaimRequest{Market: "DOGE_USD", Caller: alice})
	if !errors.Is(err, domain.ErrAlreadyClaimed) {
		return fmt.Errorf("second claim: want %v, got %v", domain.ErrAlreadyClaimed, err)
	}
	step("alice's second claim rejected: %s", domain.CodeOf(err).Name())

	_, err = svc.Claim(ctx, ledger.ClaimRequest{Market: "DOGE_USD", Caller: carol})
	if !errors.Is(err, domain.ErrNotAWinner) {
		return fmt.Errorf("carol claim: want %v, got %v", domain.ErrNotAWinner, err)
	}
	step("carol's claim rejected: %s", domain.CodeOf(err).Name())

	return report(ctx, out, svc, vault, decimals)
}

// report prints market, bet and balance tables.
func report(ctx context.Context, out io.Writer, svc *ledger.Service, vault *escrow.Vault, decimals int32) error {
	amt := func(v uint64) string {
		return settlement.FormatTokenAmount(v, decimals)
	}

	markets, err := svc.ListMarkets(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nMarkets")
	mt := tablewriter.NewWriter(out)
	mt.Header("Name", "Address", "Yes", "No", "Settled", "Outcome", "Escrow")
	for _, m := range markets {
		held, err := vault.EscrowBalance(ctx, m.Address)
		if err != nil {
			return err
		}
		outcome := "-"
		if m.Settled {
			outcome = domain.SideOf(m.Outcome).String()
		}
		if err := mt.Append(
			m.Name,
			m.Address.String(),
			amt(m.YesAmount),
			amt(m.NoAmount),
			fmt.Sprintf("%t", m.Settled),
			outcome,
			amt(held),
		); err != nil {
			return err
		}
	}
	if err := mt.Render(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nBets")
	bt := tablewriter.NewWriter(out)
	bt.Header("Market", "User", "Side", "Amount", "Claimed")
	for _, m := range markets {
		bets, err := svc.ListBets(ctx, m.Name)
		if err != nil {
			return err
		}
		for _, b := range bets {
			if err := bt.Append(
				m.Name,
				label(b.User),
				b.Side().String(),
				amt(b.Amount),
				fmt.Sprintf("%t", b.Claimed),
			); err != nil {
				return err
			}
		}
	}
	if err := bt.Render(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nBalances")
	wt := tablewriter.NewWriter(out)
	wt.Header("Holder", "Balance")
	holders, err := vault.Holders(ctx)
	if err != nil {
		return err
	}
	for _, h := range holders {
		if err := wt.Append(label(h.Address), amt(h.Amount)); err != nil {
			return err
		}
	}
	supply, err := vault.Total(ctx)
	if err != nil {
		return err
	}
	if err := wt.Append("total supply", amt(supply)); err != nil {
		return err
	}
	return wt.Render()
}

func label(pk domain.Pubkey) string {
	if name, ok := names[pk]; ok {
		return name
	}
	return pk.String()
}
