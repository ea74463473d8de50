package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/indicator"
	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
	"github.com/Ruscigno/marketpulse/storage"
)

const (
	// MinSamples is the floor below which statistics are not computed;
	// PreferredSamples is the window the analyzer asks history for.
	MinSamples       = 50
	PreferredSamples = 200

	momentumWindow = 10

	// tradingDaysPerYear annualizes per-sample return volatility.
	tradingDaysPerYear = 252
)

// Analyzer computes descriptive statistics and moving-average trend reads
// over historical prices. All computation is a pure pass over an immutable
// snapshot; no locking.
type Analyzer struct {
	quotes storage.QuoteRepository
	cache  cache.Cache
	logger *zap.Logger
}

func NewAnalyzer(quotes storage.QuoteRepository, c cache.Cache, logger *zap.Logger) *Analyzer {
	return &Analyzer{quotes: quotes, cache: c, logger: logger}
}

// ComputeStatistics builds descriptive statistics for symbol over quotes in
// the trailing window.
func (a *Analyzer) ComputeStatistics(ctx context.Context, symbol string, window time.Duration) (*model.MarketStatistics, error) {
	symbol = model.CanonicalSymbol(symbol)
	key := fmt.Sprintf("statistics:%s:%d", symbol, int64(window.Seconds()))
	return cache.GetOrSetJSON(ctx, a.cache, key, cache.TTLFor(cache.ClassStatistics), func(ctx context.Context) (*model.MarketStatistics, error) {
		now := time.Now().UTC()
		quotes, err := a.quotes.History(ctx, symbol, now.Add(-window), now)
		if err != nil {
			return nil, err
		}
		prices := make([]float64, len(quotes))
		for i, quote := range quotes {
			prices[i] = quote.Price
		}
		return computeStatistics(symbol, prices, PreferredSamples, now)
	})
}

func computeStatistics(symbol string, prices []float64, windowSize int, now time.Time) (*model.MarketStatistics, error) {
	if len(prices) < MinSamples {
		return nil, &indicator.InsufficientDataError{Indicator: "statistics", Required: MinSamples, Got: len(prices)}
	}
	if len(prices) > windowSize {
		prices = prices[len(prices)-windowSize:]
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	mean := meanOf(prices)
	var variance float64
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))

	stats := &model.MarketStatistics{
		Symbol:       symbol,
		Mean:         mean,
		Median:       percentile(sorted, 0.50),
		StdDev:       math.Sqrt(variance),
		Variance:     variance,
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Percentile25: percentile(sorted, 0.25),
		Percentile75: percentile(sorted, 0.75),
		Momentum:     momentum(prices),
		WindowSize:   windowSize,
		SampleCount:  len(prices),
		ComputedAt:   now,
	}
	stats.AnnualizedVolatility = annualizedVolatility(prices)

	if rsi, err := indicator.RSI(prices, indicator.DefaultRSIPeriod); err == nil {
		stats.RSI = rsi.Value
	}
	return stats, nil
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile interpolates linearly between ranks of an ascending-sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// momentum is the percent difference between the mean of the last 10 prices
// and the mean of the 10 before those.
func momentum(prices []float64) float64 {
	if len(prices) < 2*momentumWindow {
		return 0
	}
	recent := meanOf(prices[len(prices)-momentumWindow:])
	prior := meanOf(prices[len(prices)-2*momentumWindow : len(prices)-momentumWindow])
	if prior == 0 {
		return 0
	}
	return (recent - prior) / prior * 100
}

// annualizedVolatility is the standard deviation of simple returns scaled by
// sqrt of trading days per year.
func annualizedVolatility(prices []float64) float64 {
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	if len(returns) == 0 {
		return 0
	}
	mean := meanOf(returns)
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}
