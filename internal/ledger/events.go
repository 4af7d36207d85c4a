package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/events"
)

// newEvent snapshots m after a committed mutation.
func newEvent(kind domain.EventKind, m *domain.Market, actor domain.Pubkey, now int64) *domain.LedgerEvent {
	return &domain.LedgerEvent{
		EventID:    uuid.NewString(),
		Kind:       kind,
		Market:     m.Address,
		MarketName: m.Name,
		Actor:      actor,
		YesAmount:  m.YesAmount,
		NoAmount:   m.NoAmount,
		Timestamp:  now,
	}
}

// emit delivers a committed event to the activity log and the bus. Delivery
// is best effort: the mutation is already durable, so failures are logged
// and counted only.
func (s *Service) emit(ctx context.Context, e *domain.LedgerEvent) {
	ctx, cancel := detached(ctx)
	defer cancel()

	s.metrics.RecordEvent(e.Kind.String())
	log := s.log.WithFields(logrus.Fields{
		"event":  e.Kind,
		"market": e.MarketName,
	})

	if s.activity != nil {
		if err := s.activity.InsertBulk(ctx, []*domain.LedgerEvent{e}); err != nil {
			s.metrics.RecordEmitError("activity")
			log.WithError(err).Warn("activity log insert failed")
		}
	}

	if s.bus != nil {
		payload, err := events.Encode(e)
		if err != nil {
			s.metrics.RecordEmitError("bus")
			log.WithError(err).Warn("event encode failed")
			return
		}
		if err := s.bus.Publish(ctx, events.LedgerChannel, payload); err != nil {
			s.metrics.RecordEmitError("bus")
			log.WithError(err).Warn("event publish failed")
		}
	}
}
