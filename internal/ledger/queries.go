package ledger

import (
	"context"
	"errors"
	"fmt"

	"memecoin-prediction-market/internal/address"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/settlement"
	"memecoin-prediction-market/internal/storage"
)

// ErrActivityDisabled is returned by Activity when no activity store is configured.
var ErrActivityDisabled = errors.New("activity log disabled")

// GetMarket returns the market with the given name.
func (s *Service) GetMarket(ctx context.Context, name string) (*domain.Market, error) {
	addr, _, err := s.marketAddress(name)
	if err != nil {
		return nil, err
	}
	return loadMarket(ctx, s.ledger.Markets(), addr)
}

// ListMarkets returns every market, oldest first.
func (s *Service) ListMarkets(ctx context.Context) ([]*domain.Market, error) {
	markets, err := s.ledger.Markets().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return markets, nil
}

// ListMarketsByCreator returns the markets opened by creator, oldest first.
func (s *Service) ListMarketsByCreator(ctx context.Context, creator domain.Pubkey) ([]*domain.Market, error) {
	markets, err := s.ledger.Markets().GetByCreator(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("list markets of %s: %w", creator, err)
	}
	return markets, nil
}

// ListBets returns the bets of the named market in placement order.
func (s *Service) ListBets(ctx context.Context, name string) ([]*domain.Bet, error) {
	m, err := s.GetMarket(ctx, name)
	if err != nil {
		return nil, err
	}
	bets, err := s.ledger.Bets().GetByMarket(ctx, m.Address)
	if err != nil {
		return nil, fmt.Errorf("list bets of %s: %w", name, err)
	}
	return bets, nil
}

// ListBetsByUser returns every bet placed by user across markets.
func (s *Service) ListBetsByUser(ctx context.Context, user domain.Pubkey) ([]*domain.Bet, error) {
	bets, err := s.ledger.Bets().GetByUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list bets of %s: %w", user, err)
	}
	return bets, nil
}

// GetBet returns user's bet in the named market.
func (s *Service) GetBet(ctx context.Context, name string, user domain.Pubkey) (*domain.Bet, error) {
	marketAddr, _, err := s.marketAddress(name)
	if err != nil {
		return nil, err
	}
	betAddr, _, err := address.BetAddress(s.programID, marketAddr, user)
	if err != nil {
		return nil, fmt.Errorf("derive bet address: %w", err)
	}
	return loadBet(ctx, s.ledger.Bets(), betAddr)
}

// Quote returns the pool shares and implied multipliers of the named market.
func (s *Service) Quote(ctx context.Context, name string) (*domain.Market, settlement.Quote, error) {
	m, err := s.GetMarket(ctx, name)
	if err != nil {
		return nil, settlement.Quote{}, err
	}
	return m, settlement.QuoteMarket(m), nil
}

// PendingPayout returns what user's bet would pay if claimed now. The market
// must be settled and the bet a winner.
func (s *Service) PendingPayout(ctx context.Context, name string, user domain.Pubkey) (uint64, error) {
	m, err := s.GetMarket(ctx, name)
	if err != nil {
		return 0, err
	}
	b, err := s.GetBet(ctx, name, user)
	if err != nil {
		return 0, err
	}
	return settlement.AuthorizeClaim(m, b, user)
}

// Activity returns the recorded events of the named market, oldest first.
func (s *Service) Activity(ctx context.Context, name string) ([]*domain.LedgerEvent, error) {
	if s.activity == nil {
		return nil, ErrActivityDisabled
	}
	addr, _, err := s.marketAddress(name)
	if err != nil {
		return nil, err
	}
	evts, err := s.activity.GetByMarket(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("activity of %s: %w", name, err)
	}
	return evts, nil
}

// ActivityBetween returns the events recorded within [start, end] unix seconds.
func (s *Service) ActivityBetween(ctx context.Context, start, end int64) ([]*domain.LedgerEvent, error) {
	if s.activity == nil {
		return nil, ErrActivityDisabled
	}
	if end < start {
		return nil, fmt.Errorf("%w: end before start", storage.ErrInvalidInput)
	}
	evts, err := s.activity.GetByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("activity between %d and %d: %w", start, end, err)
	}
	return evts, nil
}
