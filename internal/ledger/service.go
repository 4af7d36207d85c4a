// Package ledger dispatches prediction market requests: it derives record
// addresses, serializes work per record, applies the settlement rules and
// commits record changes together with the escrow token movements.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"memecoin-prediction-market/internal/address"
	"memecoin-prediction-market/internal/clock"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/events"
	"memecoin-prediction-market/internal/lock"
	"memecoin-prediction-market/internal/logging"
	"memecoin-prediction-market/internal/observability"
	"memecoin-prediction-market/internal/storage"
)

// DefaultLockTimeout bounds how long a request waits for a record lock.
const DefaultLockTimeout = 5 * time.Second

// emitTimeout bounds event delivery, which runs detached from the request context.
const emitTimeout = 10 * time.Second

// Operation names used in logs and metrics.
const (
	opCreateMarket = "create_market"
	opPlaceBet     = "place_bet"
	opSettle       = "settle"
	opClaim        = "claim"
)

// Options for creating a Service.
type Options struct {
	// Required
	Ledger storage.Ledger

	// Optional; defaults in parentheses
	Locker      lock.Locker            // in-process MemoryLocker
	Clock       clock.Clock            // wall clock
	ProgramID   domain.Pubkey          // address.DefaultProgramID
	Bus         events.Bus             // no publishing
	Activity    storage.ActivityStore  // no activity log
	Logger      logrus.FieldLogger     // discard
	Metrics     *observability.Metrics // observability.DefaultMetrics
	LockTimeout time.Duration          // DefaultLockTimeout
	Backend     string                 // database label for metrics ("ledger")
}

// Service is the request dispatcher over the market and bet ledgers.
type Service struct {
	ledger      storage.Ledger
	locker      lock.Locker
	clock       clock.Clock
	programID   domain.Pubkey
	bus         events.Bus
	activity    storage.ActivityStore
	log         logrus.FieldLogger
	metrics     *observability.Metrics
	lockTimeout time.Duration
	backend     string
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Ledger == nil {
		return nil, errors.New("ledger: storage ledger is required")
	}

	s := &Service{
		ledger:      opts.Ledger,
		locker:      opts.Locker,
		clock:       opts.Clock,
		programID:   opts.ProgramID,
		bus:         opts.Bus,
		activity:    opts.Activity,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		lockTimeout: opts.LockTimeout,
		backend:     opts.Backend,
	}
	if s.locker == nil {
		s.locker = lock.NewMemoryLocker()
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.programID.IsZero() {
		s.programID = address.DefaultProgramID
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.metrics == nil {
		s.metrics = observability.DefaultMetrics
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = DefaultLockTimeout
	}
	if s.backend == "" {
		s.backend = "ledger"
	}
	return s, nil
}

// ProgramID returns the program id addresses are derived under.
func (s *Service) ProgramID() domain.Pubkey {
	return s.programID
}

// acquire takes the record lock for key, waiting at most lockTimeout.
func (s *Service) acquire(ctx context.Context, scope, key string) (func(), error) {
	start := time.Now()
	lctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	unlock, err := s.locker.Acquire(lctx, key)
	s.metrics.RecordLockWait(scope, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	return unlock, nil
}

// withinTx runs fn in a storage transaction and records its latency.
func (s *Service) withinTx(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	start := time.Now()
	err := s.ledger.WithinTx(ctx, fn)

	// Rule violations are answers, not database failures.
	var dbErr error
	if err != nil && domain.CodeOf(err) == domain.CodeUnknown {
		dbErr = err
	}
	s.metrics.RecordDBQuery(s.backend, op, time.Since(start).Seconds(), dbErr)
	return err
}

// observe records the outcome of a finished operation.
func (s *Service) observe(op string, start time.Time, err error) {
	result := observability.ResultOK
	if err != nil {
		result = domain.CodeOf(err).Name()
	}
	s.metrics.RecordOperation(op, result, time.Since(start).Seconds())

	if err != nil {
		entry := s.log.WithFields(logrus.Fields{"op": op, "code": result})
		if domain.CodeOf(err) == domain.CodeUnknown {
			entry.WithError(err).Error("ledger operation failed")
		} else {
			entry.WithError(err).Debug("ledger operation rejected")
		}
	}
}

// marketAddress derives the market address from its name.
func (s *Service) marketAddress(name string) (domain.Pubkey, uint8, error) {
	return address.MarketAddress(s.programID, name)
}

// loadMarket reads a market through st, translating a miss to ErrMarketNotFound.
func loadMarket(ctx context.Context, st storage.MarketStore, addr domain.Pubkey) (*domain.Market, error) {
	m, err := st.GetByAddress(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMarketNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", addr, err)
	}
	return m, nil
}

// loadBet reads a bet through st, translating a miss to ErrBetNotFound.
func loadBet(ctx context.Context, st storage.BetStore, addr domain.Pubkey) (*domain.Bet, error) {
	b, err := st.GetByAddress(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBetNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("get bet %s: %w", addr, err)
	}
	return b, nil
}

// escrowAddress derives the escrow token account of a market.
func (s *Service) escrowAddress(market domain.Pubkey) (domain.Pubkey, error) {
	addr, _, err := address.EscrowAddress(s.programID, market)
	if err != nil {
		return domain.Pubkey{}, fmt.Errorf("derive escrow address: %w", err)
	}
	return addr, nil
}

// detached returns a context for work that must finish even if the request
// was canceled.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
}
