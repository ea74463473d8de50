package indicator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
)

// BarSource supplies the historical bars the engine computes over.
type BarSource interface {
	AggregateSeries(ctx context.Context, symbol string, period model.BarPeriod, start, end time.Time) ([]model.AggregatedBar, error)
}

// Engine computes the canonical indicator set over aggregated bars and
// caches the result per symbol and period.
type Engine struct {
	bars   BarSource
	cache  cache.Cache
	logger *zap.Logger
}

func NewEngine(bars BarSource, c cache.Cache, logger *zap.Logger) *Engine {
	return &Engine{bars: bars, cache: c, logger: logger}
}

// Analyze computes the full indicator read for symbol over the trailing
// lookback bars of the given period. Computation is a pure pass over the
// fetched series; no locking is needed.
func (e *Engine) Analyze(ctx context.Context, symbol string, period model.BarPeriod, lookback int) (*Analysis, error) {
	duration, err := period.Duration()
	if err != nil {
		return nil, err
	}
	symbol = model.CanonicalSymbol(symbol)

	key := fmt.Sprintf("indicators:%s:%s:%d", symbol, period, lookback)
	return cache.GetOrSetJSON(ctx, e.cache, key, cache.TTLFor(cache.ClassIndicators), func(ctx context.Context) (*Analysis, error) {
		end := time.Now().UTC().Truncate(duration).Add(duration)
		start := end.Add(-time.Duration(lookback) * duration)
		bars, err := e.bars.AggregateSeries(ctx, symbol, period, start, end)
		if err != nil {
			return nil, err
		}

		highs := make([]float64, len(bars))
		lows := make([]float64, len(bars))
		closes := make([]float64, len(bars))
		volumes := make([]float64, len(bars))
		for i, bar := range bars {
			highs[i] = bar.High
			lows[i] = bar.Low
			closes[i] = bar.Close
			volumes[i] = bar.Volume
		}
		return Compute(symbol, highs, lows, closes, volumes)
	})
}
