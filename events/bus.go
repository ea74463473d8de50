package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
)

const defaultBuffer = 256

// topic is one fan-out channel group. Publish never blocks: when a
// subscriber's buffer is full its oldest event is dropped to make room, so
// a lagging consumer sees the freshest data rather than stalling ingestion.
type topic[T any] struct {
	name   string
	logger *zap.Logger
	buffer int

	mu     sync.RWMutex
	subs   []chan T
	closed bool
}

func (t *topic[T]) subscribe() <-chan T {
	ch := make(chan T, t.buffer)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		close(ch)
		return ch
	}
	t.subs = append(t.subs, ch)
	return ch
}

func (t *topic[T]) publish(event T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- event:
			continue
		default:
		}
		// Full buffer: evict the oldest event and retry once. The retry can
		// still lose the race against a concurrent publisher, in which case
		// this event is the one dropped.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
		t.logger.Warn("subscriber lagging, dropped an event",
			zap.String("topic", t.name))
	}
}

func (t *topic[T]) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, ch := range t.subs {
		close(ch)
	}
	t.subs = nil
}

// Bus is the in-process event fabric between ingestion and downstream
// consumers: quote updates, aggregated bars, trend reads, alert triggers.
type Bus struct {
	quotes *topic[model.Quote]
	bars   *topic[model.AggregatedBar]
	trends *topic[model.TrendAnalysis]
	alerts *topic[model.AlertTrigger]
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		quotes: &topic[model.Quote]{name: "quotes", logger: logger, buffer: defaultBuffer},
		bars:   &topic[model.AggregatedBar]{name: "bars", logger: logger, buffer: defaultBuffer},
		trends: &topic[model.TrendAnalysis]{name: "trends", logger: logger, buffer: defaultBuffer},
		alerts: &topic[model.AlertTrigger]{name: "alerts", logger: logger, buffer: defaultBuffer},
	}
}

func (b *Bus) PublishQuote(quote model.Quote)     { b.quotes.publish(quote) }
func (b *Bus) PublishBar(bar model.AggregatedBar) { b.bars.publish(bar) }
func (b *Bus) PublishTrend(t model.TrendAnalysis) { b.trends.publish(t) }
func (b *Bus) PublishAlert(t model.AlertTrigger)  { b.alerts.publish(t) }

func (b *Bus) SubscribeQuotes() <-chan model.Quote         { return b.quotes.subscribe() }
func (b *Bus) SubscribeBars() <-chan model.AggregatedBar   { return b.bars.subscribe() }
func (b *Bus) SubscribeTrends() <-chan model.TrendAnalysis { return b.trends.subscribe() }
func (b *Bus) SubscribeAlerts() <-chan model.AlertTrigger  { return b.alerts.subscribe() }

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.quotes.close()
	b.bars.close()
	b.trends.close()
	b.alerts.close()
}
