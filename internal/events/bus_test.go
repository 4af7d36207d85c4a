package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecoin-prediction-market/internal/domain"
)

func TestEncodeDecode(t *testing.T) {
	e := &domain.LedgerEvent{
		EventID:    "0b0f6c7e-0000-4000-8000-000000000001",
		Kind:       domain.EventBetPlaced,
		Market:     domain.Pubkey{1},
		MarketName: "DOGE_USD",
		Actor:      domain.Pubkey{2},
		Amount:     1_000_000,
		Side:       domain.SideYes,
		YesAmount:  1_000_000,
		Timestamp:  1_700_000_000,
	}

	data, err := Encode(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"BET_PLACED"`)
	assert.Contains(t, string(data), `"market":"`+e.Market.String()+`"`)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = Decode([]byte(`{"kind":"NOPE"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestMemoryBus_FanOut(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.Subscribe(ctx, LedgerChannel)
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, LedgerChannel)
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, LedgerChannel, []byte("hello")))

	for _, ch := range []<-chan []byte{a, b} {
		select {
		case msg := <-ch:
			assert.Equal(t, "hello", string(msg))
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive message")
		}
	}

	select {
	case msg := <-other:
		t.Fatalf("unexpected message on other channel: %s", msg)
	default:
	}
}

func TestMemoryBus_UnsubscribeOnCancel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, LedgerChannel)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}

	// Publishing after unsubscribe is a no-op
	require.NoError(t, bus.Publish(context.Background(), LedgerChannel, []byte("x")))
}

func TestMemoryBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	ch, err := bus.Subscribe(ctx, LedgerChannel)
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(ctx, LedgerChannel, []byte{byte(i)}))
	}
	assert.Len(t, ch, subscriberBuffer)
}
