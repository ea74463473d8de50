package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	first := bus.SubscribeQuotes()
	second := bus.SubscribeQuotes()

	quote := model.Quote{Symbol: "AAPL", Price: 150}
	bus.PublishQuote(quote)

	select {
	case got := <-first:
		assert.Equal(t, quote, got)
	case <-time.After(time.Second):
		t.Fatal("first subscriber did not receive the event")
	}
	select {
	case got := <-second:
		assert.Equal(t, quote, got)
	case <-time.After(time.Second):
		t.Fatal("second subscriber did not receive the event")
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	_ = bus.SubscribeQuotes() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBuffer*2; i++ {
			bus.PublishQuote(model.Quote{Symbol: "AAPL"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBusDropsOldestWhenSubscriberLags(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	ch := bus.SubscribeQuotes()
	overflow := defaultBuffer + 10
	for i := 0; i < overflow; i++ {
		bus.PublishQuote(model.Quote{Symbol: "AAPL", Price: float64(i)})
	}

	var last model.Quote
	received := 0
drain:
	for {
		select {
		case quote := <-ch:
			last = quote
			received++
		default:
			break drain
		}
	}

	assert.Equal(t, defaultBuffer, received)
	// The freshest event survives; the oldest ones were evicted.
	assert.Equal(t, float64(overflow-1), last.Price)
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch := bus.SubscribeAlerts()

	bus.Close()

	_, open := <-ch
	require.False(t, open)

	// Publishing after close must not panic.
	bus.PublishAlert(model.AlertTrigger{})
}

func TestBusTopicsAreIndependent(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	quotes := bus.SubscribeQuotes()
	bars := bus.SubscribeBars()

	bus.PublishBar(model.AggregatedBar{Symbol: "MSFT", Period: model.Period1m})

	select {
	case <-quotes:
		t.Fatal("quote subscriber received a bar event")
	case bar := <-bars:
		assert.Equal(t, "MSFT", bar.Symbol)
	case <-time.After(time.Second):
		t.Fatal("bar subscriber did not receive the event")
	}
}
