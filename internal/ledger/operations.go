package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"memecoin-prediction-market/internal/address"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/escrow"
	"memecoin-prediction-market/internal/lock"
	"memecoin-prediction-market/internal/settlement"
	"memecoin-prediction-market/internal/storage"
)

// CreateMarketRequest opens a new market.
type CreateMarketRequest struct {
	Name            string
	ExpiryTimestamp int64
	Creator         domain.Pubkey
}

// PlaceBetRequest stakes Amount on Prediction in the named market.
type PlaceBetRequest struct {
	Market     string
	User       domain.Pubkey
	Amount     uint64
	Prediction bool
}

// SettleRequest fixes the outcome of the named market.
type SettleRequest struct {
	Market  string
	Outcome bool
	Caller  domain.Pubkey
}

// ClaimRequest withdraws winnings from the named market. Bet selects the bet
// record explicitly; when nil it is derived from (market, Caller).
type ClaimRequest struct {
	Market string
	Caller domain.Pubkey
	Bet    *domain.Pubkey
}

// ClaimResult is a successful claim.
type ClaimResult struct {
	Bet    *domain.Bet
	Payout uint64
}

// CreateMarket opens an unsettled market with empty pools.
func (s *Service) CreateMarket(ctx context.Context, req CreateMarketRequest) (_ *domain.Market, err error) {
	start := time.Now()
	defer func() { s.observe(opCreateMarket, start, err) }()

	addr, bump, err := s.marketAddress(req.Name)
	if err != nil {
		return nil, err
	}

	unlock, err := s.acquire(ctx, "market", lock.MarketKey(addr))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	m := &domain.Market{
		Address:         addr,
		Name:            req.Name,
		Creator:         req.Creator,
		ExpiryTimestamp: req.ExpiryTimestamp,
		Bump:            bump,
		CreatedAt:       now,
	}

	err = s.withinTx(ctx, opCreateMarket, func(tx storage.Tx) error {
		_, err := tx.Markets().GetByAddress(ctx, addr)
		switch {
		case err == nil:
			return domain.ErrDuplicateMarket
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("get market %s: %w", addr, err)
		}

		if err := settlement.ValidateExpiry(req.ExpiryTimestamp, now); err != nil {
			return err
		}

		if err := tx.Markets().Insert(ctx, m); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return domain.ErrDuplicateMarket
			}
			return fmt.Errorf("insert market %s: %w", addr, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"op":     opCreateMarket,
		"market": m.Name,
		"expiry": m.ExpiryTimestamp,
	}).Info("market created")
	s.emit(ctx, newEvent(domain.EventMarketCreated, m, m.Creator, now))
	return m, nil
}

// PlaceBet admits a stake: the bet, the pool increment and the move of the
// stake from the user's wallet into the market escrow commit together.
func (s *Service) PlaceBet(ctx context.Context, req PlaceBetRequest) (_ *domain.Bet, err error) {
	start := time.Now()
	defer func() { s.observe(opPlaceBet, start, err) }()

	marketAddr, _, err := s.marketAddress(req.Market)
	if err != nil {
		return nil, err
	}
	betAddr, betBump, err := address.BetAddress(s.programID, marketAddr, req.User)
	if err != nil {
		return nil, fmt.Errorf("derive bet address: %w", err)
	}
	escrowAddr, err := s.escrowAddress(marketAddr)
	if err != nil {
		return nil, err
	}

	// Pool increments on one market are serialized.
	unlock, err := s.acquire(ctx, "market", lock.MarketKey(marketAddr))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	bet := &domain.Bet{
		Address:    betAddr,
		Market:     marketAddr,
		User:       req.User,
		Amount:     req.Amount,
		Prediction: req.Prediction,
		Bump:       betBump,
		PlacedAt:   now,
	}
	var updated *domain.Market

	err = s.withinTx(ctx, opPlaceBet, func(tx storage.Tx) error {
		current, err := loadMarket(ctx, tx.Markets(), marketAddr)
		if err != nil {
			return err
		}
		next, err := admit(current, req, now)
		if err != nil {
			return err
		}
		if _, err := tx.Bets().GetByAddress(ctx, betAddr); err == nil {
			return domain.ErrDuplicateBet
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get bet %s: %w", betAddr, err)
		}

		if err := escrow.Lock(ctx, tx.Accounts(), escrowAddr, req.User, req.Amount); err != nil {
			return fmt.Errorf("%w: lock stake: %w", domain.ErrTransfer, err)
		}
		if err := tx.Bets().Insert(ctx, bet); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return domain.ErrDuplicateBet
			}
			return fmt.Errorf("insert bet %s: %w", betAddr, err)
		}
		if err := tx.Markets().Update(ctx, next); err != nil {
			return fmt.Errorf("update market %s: %w", marketAddr, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBet(bet.Side().String(), bet.Amount)
	s.log.WithFields(logrus.Fields{
		"op":     opPlaceBet,
		"market": req.Market,
		"user":   req.User.String(),
		"amount": req.Amount,
		"side":   bet.Side(),
	}).Info("bet placed")

	e := newEvent(domain.EventBetPlaced, updated, req.User, now)
	e.Amount = bet.Amount
	e.Side = bet.Side()
	s.emit(ctx, e)
	return bet, nil
}

// admit applies the admission rules to m and returns a copy with the stake
// added to the chosen pool.
func admit(m *domain.Market, req PlaceBetRequest, now int64) (*domain.Market, error) {
	if err := settlement.AdmitBet(m, req.Amount, now); err != nil {
		return nil, err
	}

	next := *m
	var err error
	if req.Prediction {
		next.YesAmount, err = settlement.AddStake(m.YesAmount, req.Amount)
	} else {
		next.NoAmount, err = settlement.AddStake(m.NoAmount, req.Amount)
	}
	if err != nil {
		return nil, err
	}
	// Payouts draw on the combined pool, so it must stay representable too.
	if _, err := settlement.AddStake(next.YesAmount, next.NoAmount); err != nil {
		return nil, err
	}
	return &next, nil
}

// Settle fixes the outcome of an expired market. Only the creator may settle,
// and only once.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (_ *domain.Market, err error) {
	start := time.Now()
	defer func() { s.observe(opSettle, start, err) }()

	addr, _, err := s.marketAddress(req.Market)
	if err != nil {
		return nil, err
	}

	unlock, err := s.acquire(ctx, "market", lock.MarketKey(addr))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	var settled *domain.Market

	err = s.withinTx(ctx, opSettle, func(tx storage.Tx) error {
		m, err := loadMarket(ctx, tx.Markets(), addr)
		if err != nil {
			return err
		}
		if err := settlement.ValidateSettle(m, req.Caller, now); err != nil {
			return err
		}

		m.Settled = true
		m.Outcome = req.Outcome
		if err := tx.Markets().Update(ctx, m); err != nil {
			return fmt.Errorf("update market %s: %w", addr, err)
		}
		settled = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := domain.SideOf(settled.Outcome)
	s.metrics.RecordSettlement(outcome.String())
	s.log.WithFields(logrus.Fields{
		"op":      opSettle,
		"market":  settled.Name,
		"outcome": outcome,
		"yes":     settled.YesAmount,
		"no":      settled.NoAmount,
	}).Info("market settled")

	e := newEvent(domain.EventMarketSettled, settled, req.Caller, now)
	e.Side = outcome
	s.emit(ctx, e)
	return settled, nil
}

// Claim pays a winning bet exactly once. The claimed flag and the release of
// the payout from escrow commit together.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (_ *ClaimResult, err error) {
	start := time.Now()
	defer func() { s.observe(opClaim, start, err) }()

	marketAddr, _, err := s.marketAddress(req.Market)
	if err != nil {
		return nil, err
	}
	var betAddr domain.Pubkey
	if req.Bet != nil {
		betAddr = *req.Bet
	} else {
		betAddr, _, err = address.BetAddress(s.programID, marketAddr, req.Caller)
		if err != nil {
			return nil, fmt.Errorf("derive bet address: %w", err)
		}
	}
	escrowAddr, err := s.escrowAddress(marketAddr)
	if err != nil {
		return nil, err
	}

	// A settled market is frozen, so the bet lock alone serializes claims.
	// Claims on one market still share the escrow account, which the
	// storage transaction guards.
	unlock, err := s.acquire(ctx, "bet", lock.BetKey(betAddr))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	var (
		market *domain.Market
		bet    *domain.Bet
		payout uint64
	)

	err = s.withinTx(ctx, opClaim, func(tx storage.Tx) error {
		m, err := loadMarket(ctx, tx.Markets(), marketAddr)
		if err != nil {
			return err
		}
		b, err := loadBet(ctx, tx.Bets(), betAddr)
		if err != nil {
			return err
		}
		if b.Market != marketAddr {
			return fmt.Errorf("%w: %s is not a bet on %s", domain.ErrBetNotFound, betAddr, req.Market)
		}

		amount, err := settlement.AuthorizeClaim(m, b, req.Caller)
		if err != nil {
			return err
		}

		b.Claimed = true
		b.ClaimedAt = now
		if err := tx.Bets().Update(ctx, b); err != nil {
			return fmt.Errorf("update bet %s: %w", betAddr, err)
		}
		if err := escrow.Release(ctx, tx.Accounts(), escrowAddr, b.User, amount); err != nil {
			return fmt.Errorf("%w: release payout: %w", domain.ErrTransfer, err)
		}
		market, bet, payout = m, b, amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayout(payout)
	s.log.WithFields(logrus.Fields{
		"op":     opClaim,
		"market": req.Market,
		"user":   req.Caller.String(),
		"amount": payout,
	}).Info("winnings claimed")

	e := newEvent(domain.EventWinningsClaimed, market, req.Caller, now)
	e.Amount = payout
	e.Side = bet.Side()
	s.emit(ctx, e)
	return &ClaimResult{Bet: bet, Payout: payout}, nil
}
