package memory

import (
	"context"
	"sync"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

// Ledger is an in-memory implementation of storage.Ledger.
// Transactions are serialized and stage their writes until commit.
type Ledger struct {
	markets  *MarketStore
	bets     *BetStore
	accounts *TokenAccountStore
	txMu     sync.Mutex
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		markets:  NewMarketStore(),
		bets:     NewBetStore(),
		accounts: NewTokenAccountStore(),
	}
}

// Markets returns the market store.
func (l *Ledger) Markets() storage.MarketStore { return l.markets }

// Bets returns the bet store.
func (l *Ledger) Bets() storage.BetStore { return l.bets }

// Accounts returns the token account store.
func (l *Ledger) Accounts() storage.TokenAccountStore { return l.accounts }

// WithinTx runs fn against a staged view and commits its writes if fn succeeds.
func (l *Ledger) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &stagedTx{
		markets:  &stagedMarkets{base: l.markets, writes: make(map[domain.Pubkey]*stagedMarket)},
		bets:     &stagedBets{base: l.bets, writes: make(map[domain.Pubkey]*stagedBet)},
		accounts: &stagedAccounts{base: l.accounts, writes: make(map[domain.Pubkey]*stagedAccount)},
	}
	if err := fn(tx); err != nil {
		return err
	}
	return l.commit(tx)
}

// commit validates every staged write against the current state and applies
// all of them or none.
func (l *Ledger) commit(tx *stagedTx) error {
	l.markets.mu.Lock()
	defer l.markets.mu.Unlock()
	l.bets.mu.Lock()
	defer l.bets.mu.Unlock()
	l.accounts.mu.Lock()
	defer l.accounts.mu.Unlock()

	for addr, w := range tx.markets.writes {
		_, exists := l.markets.data[addr]
		if w.insert && exists {
			return storage.ErrDuplicateKey
		}
		if !w.insert && !exists {
			return storage.ErrNotFound
		}
	}
	for addr, w := range tx.bets.writes {
		_, exists := l.bets.data[addr]
		if w.insert && exists {
			return storage.ErrDuplicateKey
		}
		if !w.insert && !exists {
			return storage.ErrNotFound
		}
	}

	for addr, w := range tx.accounts.writes {
		_, exists := l.accounts.data[addr]
		if w.insert && exists {
			return storage.ErrDuplicateKey
		}
		if !w.insert && !exists {
			return storage.ErrNotFound
		}
	}

	for addr, w := range tx.markets.writes {
		if w.insert {
			l.markets.data[addr] = w.market
			continue
		}
		updated := *l.markets.data[addr]
		applyMarketUpdate(&updated, w.market)
		l.markets.data[addr] = &updated
	}
	for addr, w := range tx.bets.writes {
		if w.insert {
			l.bets.data[addr] = w.bet
			continue
		}
		updated := *l.bets.data[addr]
		applyBetUpdate(&updated, w.bet)
		l.bets.data[addr] = &updated
	}
	for addr, w := range tx.accounts.writes {
		if w.insert {
			l.accounts.data[addr] = w.account
			continue
		}
		updated := *l.accounts.data[addr]
		updated.Amount = w.account.Amount
		l.accounts.data[addr] = &updated
	}
	return nil
}

type stagedTx struct {
	markets  *stagedMarkets
	bets     *stagedBets
	accounts *stagedAccounts
}

func (t *stagedTx) Markets() storage.MarketStore        { return t.markets }
func (t *stagedTx) Bets() storage.BetStore              { return t.bets }
func (t *stagedTx) Accounts() storage.TokenAccountStore { return t.accounts }

type stagedMarket struct {
	market *domain.Market
	insert bool
}

// stagedMarkets reads through to base and buffers writes.
type stagedMarkets struct {
	base   *MarketStore
	writes map[domain.Pubkey]*stagedMarket
}

func (s *stagedMarkets) Insert(ctx context.Context, m *domain.Market) error {
	if err := validateMarket(m); err != nil {
		return err
	}
	if _, err := s.GetByAddress(ctx, m.Address); err == nil {
		return storage.ErrDuplicateKey
	}

	marketCopy := *m
	s.writes[m.Address] = &stagedMarket{market: &marketCopy, insert: true}
	return nil
}

func (s *stagedMarkets) Update(ctx context.Context, m *domain.Market) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	current, err := s.GetByAddress(ctx, m.Address)
	if err != nil {
		return err
	}
	applyMarketUpdate(current, m)

	w, staged := s.writes[m.Address]
	if staged {
		w.market = current
		return nil
	}
	s.writes[m.Address] = &stagedMarket{market: current}
	return nil
}

func (s *stagedMarkets) GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.Market, error) {
	if w, staged := s.writes[address]; staged {
		marketCopy := *w.market
		return &marketCopy, nil
	}
	return s.base.GetByAddress(ctx, address)
}

func (s *stagedMarkets) GetByCreator(ctx context.Context, creator domain.Pubkey) ([]*domain.Market, error) {
	base, err := s.base.GetByCreator(ctx, creator)
	if err != nil {
		return nil, err
	}
	return s.overlay(base, func(m *domain.Market) bool { return m.Creator == creator }), nil
}

func (s *stagedMarkets) GetAll(ctx context.Context) ([]*domain.Market, error) {
	base, err := s.base.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.overlay(base, func(*domain.Market) bool { return true }), nil
}

func (s *stagedMarkets) overlay(base []*domain.Market, keep func(*domain.Market) bool) []*domain.Market {
	result := make([]*domain.Market, 0, len(base))
	seen := make(map[domain.Pubkey]bool, len(base))
	for _, m := range base {
		if w, staged := s.writes[m.Address]; staged {
			marketCopy := *w.market
			m = &marketCopy
		}
		seen[m.Address] = true
		result = append(result, m)
	}
	for addr, w := range s.writes {
		if !seen[addr] && keep(w.market) {
			marketCopy := *w.market
			result = append(result, &marketCopy)
		}
	}

	sortMarkets(result)
	return result
}

type stagedBet struct {
	bet    *domain.Bet
	insert bool
}

// stagedBets reads through to base and buffers writes.
type stagedBets struct {
	base   *BetStore
	writes map[domain.Pubkey]*stagedBet
}

func (s *stagedBets) Insert(ctx context.Context, b *domain.Bet) error {
	if err := validateBet(b); err != nil {
		return err
	}
	if _, err := s.GetByAddress(ctx, b.Address); err == nil {
		return storage.ErrDuplicateKey
	}

	betCopy := *b
	s.writes[b.Address] = &stagedBet{bet: &betCopy, insert: true}
	return nil
}

func (s *stagedBets) Update(ctx context.Context, b *domain.Bet) error {
	if b == nil {
		return storage.ErrInvalidInput
	}
	current, err := s.GetByAddress(ctx, b.Address)
	if err != nil {
		return err
	}
	applyBetUpdate(current, b)

	w, staged := s.writes[b.Address]
	if staged {
		w.bet = current
		return nil
	}
	s.writes[b.Address] = &stagedBet{bet: current}
	return nil
}

func (s *stagedBets) GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.Bet, error) {
	if w, staged := s.writes[address]; staged {
		betCopy := *w.bet
		return &betCopy, nil
	}
	return s.base.GetByAddress(ctx, address)
}

func (s *stagedBets) GetByMarket(ctx context.Context, market domain.Pubkey) ([]*domain.Bet, error) {
	base, err := s.base.GetByMarket(ctx, market)
	if err != nil {
		return nil, err
	}
	return s.overlay(base, func(b *domain.Bet) bool { return b.Market == market }), nil
}

func (s *stagedBets) GetByUser(ctx context.Context, user domain.Pubkey) ([]*domain.Bet, error) {
	base, err := s.base.GetByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.overlay(base, func(b *domain.Bet) bool { return b.User == user }), nil
}

func (s *stagedBets) overlay(base []*domain.Bet, keep func(*domain.Bet) bool) []*domain.Bet {
	result := make([]*domain.Bet, 0, len(base))
	seen := make(map[domain.Pubkey]bool, len(base))
	for _, b := range base {
		if w, staged := s.writes[b.Address]; staged {
			betCopy := *w.bet
			b = &betCopy
		}
		seen[b.Address] = true
		result = append(result, b)
	}
	for addr, w := range s.writes {
		if !seen[addr] && keep(w.bet) {
			betCopy := *w.bet
			result = append(result, &betCopy)
		}
	}

	sortBets(result)
	return result
}

type stagedAccount struct {
	account *domain.TokenAccount
	insert  bool
}

// stagedAccounts reads through to base and buffers writes.
type stagedAccounts struct {
	base   *TokenAccountStore
	writes map[domain.Pubkey]*stagedAccount
}

func (s *stagedAccounts) Insert(ctx context.Context, a *domain.TokenAccount) error {
	if err := validateTokenAccount(a); err != nil {
		return err
	}
	if _, err := s.GetByAddress(ctx, a.Address); err == nil {
		return storage.ErrDuplicateKey
	}

	accountCopy := *a
	s.writes[a.Address] = &stagedAccount{account: &accountCopy, insert: true}
	return nil
}

func (s *stagedAccounts) Update(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	current, err := s.GetByAddress(ctx, a.Address)
	if err != nil {
		return err
	}
	current.Amount = a.Amount

	w, staged := s.writes[a.Address]
	if staged {
		w.account = current
		return nil
	}
	s.writes[a.Address] = &stagedAccount{account: current}
	return nil
}

func (s *stagedAccounts) GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.TokenAccount, error) {
	if w, staged := s.writes[address]; staged {
		accountCopy := *w.account
		return &accountCopy, nil
	}
	return s.base.GetByAddress(ctx, address)
}

func (s *stagedAccounts) GetAll(ctx context.Context) ([]*domain.TokenAccount, error) {
	base, err := s.base.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.TokenAccount, 0, len(base)+len(s.writes))
	seen := make(map[domain.Pubkey]bool, len(base))
	for _, a := range base {
		if w, staged := s.writes[a.Address]; staged {
			accountCopy := *w.account
			a = &accountCopy
		}
		seen[a.Address] = true
		result = append(result, a)
	}
	for addr, w := range s.writes {
		if !seen[addr] {
			accountCopy := *w.account
			result = append(result, &accountCopy)
		}
	}

	sortTokenAccounts(result)
	return result, nil
}

// Verify interface compliance at compile time.
var (
	_ storage.Ledger            = (*Ledger)(nil)
	_ storage.MarketStore       = (*stagedMarkets)(nil)
	_ storage.BetStore          = (*stagedBets)(nil)
	_ storage.TokenAccountStore = (*stagedAccounts)(nil)
)
