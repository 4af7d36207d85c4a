// Package events distributes committed ledger events to subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"memecoin-prediction-market/internal/domain"
)

// LedgerChannel carries every committed ledger event.
const LedgerChannel = "ledger"

// subscriberBuffer is the per-subscriber queue depth. Slow subscribers lose
// messages rather than block publishers.
const subscriberBuffer = 128

// Bus is a fire-and-forget pub/sub transport.
type Bus interface {
	// Publish sends payload to all current subscribers of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a stream of payloads published to channel.
	// The stream is closed when ctx is done.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Encode serializes a ledger event for the bus.
func Encode(e *domain.LedgerEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode ledger event: %w", err)
	}
	return data, nil
}

// Decode parses a bus payload into a ledger event.
func Decode(payload []byte) (*domain.LedgerEvent, error) {
	var e domain.LedgerEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode ledger event: %w", err)
	}
	if !e.Kind.IsValid() {
		return nil, fmt.Errorf("decode ledger event: unknown kind %q", e.Kind)
	}
	return &e, nil
}

// MemoryBus is an in-process Bus.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []byte]struct{}
	closed bool
}

// NewMemoryBus creates a new MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan []byte]struct{})}
}

// Publish implements Bus. Full subscriber queues drop the message.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("subscribe %s: bus closed", channel)
	}

	ch := make(chan []byte, subscriberBuffer)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[channel][ch]; ok {
			delete(b.subs[channel], ch)
			close(ch)
		}
	}()

	return ch, nil
}

// Close ends every subscription.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for channel, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, channel)
	}
}

// Compile-time interface check.
var _ Bus = (*MemoryBus)(nil)
