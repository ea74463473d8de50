package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/events"
	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
	"github.com/Ruscigno/marketpulse/pkg/metrics"
	"github.com/Ruscigno/marketpulse/storage"
)

// NoDataError reports that a requested window contained no quotes. Callers
// distinguish it from infrastructure failures: an empty window is a valid
// answer, not a retryable fault.
type NoDataError struct {
	Symbol string
	Period model.BarPeriod
	Start  time.Time
	End    time.Time
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no quotes for %s in %s window [%s, %s)",
		e.Symbol, e.Period, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// Aggregator rolls normalized quote history up into OHLCV bars. Freshly
// built bars are announced on the bus; cache hits are not re-announced.
type Aggregator struct {
	quotes  storage.QuoteRepository
	cache   cache.Cache
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewAggregator(quotes storage.QuoteRepository, c cache.Cache, bus *events.Bus, m *metrics.Metrics, logger *zap.Logger) *Aggregator {
	return &Aggregator{quotes: quotes, cache: c, bus: bus, metrics: m, logger: logger}
}

// Aggregate builds one bar for the half-open window [start, start+period).
// Open is the first quote by timestamp, Close the last, High/Low the
// extremes, Volume the sum. VWAP is volume-weighted price, 0 when the
// window traded no volume.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string, period model.BarPeriod, start time.Time) (*model.AggregatedBar, error) {
	duration, err := period.Duration()
	if err != nil {
		return nil, err
	}
	end := start.Add(duration)
	symbol = model.CanonicalSymbol(symbol)

	key := fmt.Sprintf("bars:%s:%s:%d", symbol, period, start.Unix())
	return cache.GetOrSetJSON(ctx, a.cache, key, cache.TTLFor(cache.ClassBars), func(ctx context.Context) (*model.AggregatedBar, error) {
		quotes, err := a.quotes.History(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		bar, err := buildBar(symbol, period, end, quotes)
		if err != nil {
			return nil, err
		}
		a.metrics.BarsAggregated.With("period", string(period)).Add(1)
		if a.bus != nil {
			a.bus.PublishBar(*bar)
		}
		return bar, nil
	})
}

// AggregateSeries builds consecutive bars covering [start, end), skipping
// windows with no quotes. It never fails just because some windows are empty;
// it returns NoDataError only when every window is.
func (a *Aggregator) AggregateSeries(ctx context.Context, symbol string, period model.BarPeriod, start, end time.Time) ([]model.AggregatedBar, error) {
	duration, err := period.Duration()
	if err != nil {
		return nil, err
	}

	var bars []model.AggregatedBar
	for windowStart := start; windowStart.Before(end); windowStart = windowStart.Add(duration) {
		bar, err := a.Aggregate(ctx, symbol, period, windowStart)
		if err != nil {
			var noData *NoDataError
			if errors.As(err, &noData) {
				continue
			}
			return nil, err
		}
		bars = append(bars, *bar)
	}
	if len(bars) == 0 {
		return nil, &NoDataError{Symbol: model.CanonicalSymbol(symbol), Period: period, Start: start, End: end}
	}
	return bars, nil
}

func buildBar(symbol string, period model.BarPeriod, closeTime time.Time, quotes []model.Quote) (*model.AggregatedBar, error) {
	if len(quotes) == 0 {
		duration, _ := period.Duration()
		return nil, &NoDataError{Symbol: symbol, Period: period, Start: closeTime.Add(-duration), End: closeTime}
	}

	bar := model.AggregatedBar{
		Symbol:     symbol,
		Period:     period,
		Open:       quotes[0].Price,
		High:       quotes[0].Price,
		Low:        quotes[0].Price,
		Close:      quotes[len(quotes)-1].Price,
		TradeCount: len(quotes),
		CloseTime:  closeTime,
	}

	var weighted float64
	for _, quote := range quotes {
		if quote.Price > bar.High {
			bar.High = quote.Price
		}
		if quote.Price < bar.Low {
			bar.Low = quote.Price
		}
		bar.Volume += quote.Volume
		weighted += quote.Price * quote.Volume
	}
	if bar.Volume > 0 {
		bar.VWAP = weighted / bar.Volume
	}
	return &bar, nil
}
