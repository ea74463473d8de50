package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/events"
	"github.com/Ruscigno/marketpulse/indicator"
	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
)

const (
	shortMAWindow = 50
	longMAWindow  = 200

	// crossLookback is how many bars back the SMA ordering is compared
	// against to detect a golden or death cross.
	crossLookback = 5

	// srWindow prices feed support/resistance; srInset pulls both levels
	// 10% of the range inside the raw extremes.
	srWindow = 50
	srInset  = 0.10
)

// AnalyzeTrend classifies symbol's trend from the relative ordering of price,
// SMA50, and SMA200 over the trailing window.
func (a *Analyzer) AnalyzeTrend(ctx context.Context, symbol string, window time.Duration) (*model.TrendAnalysis, error) {
	symbol = model.CanonicalSymbol(symbol)
	key := fmt.Sprintf("trend:%s:%d", symbol, int64(window.Seconds()))
	return cache.GetOrSetJSON(ctx, a.cache, key, cache.TTLFor(cache.ClassStatistics), func(ctx context.Context) (*model.TrendAnalysis, error) {
		now := time.Now().UTC()
		quotes, err := a.quotes.History(ctx, symbol, now.Add(-window), now)
		if err != nil {
			return nil, err
		}
		prices := make([]float64, len(quotes))
		for i, quote := range quotes {
			prices[i] = quote.Price
		}
		return analyzeTrend(symbol, prices, now)
	})
}

// PublishTrends periodically recomputes trend reads for the active universe
// and publishes them. Symbols without enough history are skipped quietly.
func (a *Analyzer) PublishTrends(ctx context.Context, bus *events.Bus, universe func() []string, window, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range universe() {
				trend, err := a.AnalyzeTrend(ctx, symbol, window)
				if err != nil {
					var insufficientErr *indicator.InsufficientDataError
					if !errors.As(err, &insufficientErr) {
						a.logger.Warn("trend analysis failed",
							zap.String("symbol", symbol), zap.Error(err))
					}
					continue
				}
				bus.PublishTrend(*trend)
			}
		}
	}
}

func analyzeTrend(symbol string, prices []float64, now time.Time) (*model.TrendAnalysis, error) {
	if len(prices) < MinSamples {
		return nil, &indicator.InsufficientDataError{Indicator: "trend", Required: MinSamples, Got: len(prices)}
	}

	price := prices[len(prices)-1]
	ma50 := trailingSMA(prices, shortMAWindow, 0)
	ma200 := trailingSMA(prices, longMAWindow, 0)

	trend := &model.TrendAnalysis{
		Symbol:    symbol,
		Momentum:  momentum(prices),
		MA50:      ma50,
		MA200:     ma200,
		Timestamp: now,
	}

	switch {
	case price > ma50 && ma50 > ma200:
		trend.Trend = model.TrendBullish
		trend.Strength = capStrength(50 + 25*abs(trend.Momentum))
	case price < ma50 && ma50 < ma200:
		trend.Trend = model.TrendBearish
		trend.Strength = capStrength(50 + 25*abs(trend.Momentum))
	default:
		trend.Trend = model.TrendNeutral
		trend.Strength = capStrength(25 + 25*abs(trend.Momentum))
	}

	trend.Support, trend.Resistance = supportResistance(prices)

	// Cross detection compares the current SMA ordering with the ordering
	// five bars earlier; a cross needs both readings available.
	if len(prices) > longMAWindow+crossLookback {
		prev50 := trailingSMA(prices, shortMAWindow, crossLookback)
		prev200 := trailingSMA(prices, longMAWindow, crossLookback)
		trend.GoldenCross = prev50 <= prev200 && ma50 > ma200
		trend.DeathCross = prev50 >= prev200 && ma50 < ma200
	}
	return trend, nil
}

// trailingSMA averages the last n prices ending offset bars before the end.
// With fewer than n prices available it averages what there is.
func trailingSMA(prices []float64, n, offset int) float64 {
	end := len(prices) - offset
	start := end - n
	if start < 0 {
		start = 0
	}
	ma := movingaverage.New(n)
	for _, p := range prices[start:end] {
		ma.Add(p)
	}
	return ma.Avg()
}

// supportResistance takes the min/max of the trailing window, pulled inside
// the raw range by 10% so levels are not pinned to single outlier ticks.
func supportResistance(prices []float64) (support, resistance float64) {
	window := prices
	if len(window) > srWindow {
		window = window[len(window)-srWindow:]
	}
	low, high := window[0], window[0]
	for _, p := range window {
		if p < low {
			low = p
		}
		if p > high {
			high = p
		}
	}
	inset := (high - low) * srInset
	return low + inset, high - inset
}

func capStrength(v float64) float64 {
	if v > 100 {
		return 100
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
