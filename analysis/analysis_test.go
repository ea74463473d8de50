package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruscigno/marketpulse/indicator"
	"github.com/Ruscigno/marketpulse/model"
)

func repeatPrices(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func rampPrices(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestComputeStatisticsMinimumSamples(t *testing.T) {
	now := time.Now().UTC()

	_, err := computeStatistics("AAPL", rampPrices(100, 1, MinSamples-1), PreferredSamples, now)
	var insufficientErr *indicator.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, MinSamples, insufficientErr.Required)

	stats, err := computeStatistics("AAPL", rampPrices(100, 1, MinSamples), PreferredSamples, now)
	require.NoError(t, err)
	assert.Equal(t, MinSamples, stats.SampleCount)
}

func TestComputeStatisticsDescriptives(t *testing.T) {
	// Prices 1..50: closed-form mean, median, and extremes.
	stats, err := computeStatistics("AAPL", rampPrices(1, 1, 50), PreferredSamples, time.Now().UTC())
	require.NoError(t, err)

	assert.InDelta(t, 25.5, stats.Mean, 1e-9)
	assert.InDelta(t, 25.5, stats.Median, 1e-9)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 50.0, stats.Max)
	assert.InDelta(t, 14.43, stats.StdDev, 0.01)
	assert.InDelta(t, stats.StdDev*stats.StdDev, stats.Variance, 1e-6)
	assert.Less(t, stats.Percentile25, stats.Median)
	assert.Greater(t, stats.Percentile75, stats.Median)
}

func TestComputeStatisticsConstantSeries(t *testing.T) {
	stats, err := computeStatistics("MSFT", repeatPrices(75, 60), PreferredSamples, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, 75.0, stats.Mean)
	assert.Equal(t, 0.0, stats.StdDev)
	assert.Equal(t, 0.0, stats.AnnualizedVolatility)
	assert.Equal(t, 0.0, stats.Momentum)
	assert.Equal(t, 50.0, stats.RSI)
}

func TestComputeStatisticsTruncatesToWindow(t *testing.T) {
	stats, err := computeStatistics("AAPL", rampPrices(1, 1, 300), PreferredSamples, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, PreferredSamples, stats.SampleCount)
	// Only the trailing window counts, so the minimum is price 101, not 1.
	assert.Equal(t, 101.0, stats.Min)
}

func TestMomentumTenVersusPriorTen(t *testing.T) {
	prices := append(repeatPrices(100, 40), repeatPrices(110, 10)...)
	assert.InDelta(t, 10.0, momentum(prices), 1e-9)

	assert.Equal(t, 0.0, momentum(repeatPrices(100, 15))) // too short for two windows
}

func TestAnalyzeTrendMinimumSamples(t *testing.T) {
	_, err := analyzeTrend("AAPL", rampPrices(100, 1, MinSamples-1), time.Now().UTC())
	var insufficientErr *indicator.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
}

func TestAnalyzeTrendBullishOrdering(t *testing.T) {
	trend, err := analyzeTrend("AAPL", rampPrices(100, 0.5, 250), time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, model.TrendBullish, trend.Trend)
	assert.Greater(t, trend.MA50, trend.MA200)
	assert.Greater(t, trend.Momentum, 0.0)
	assert.GreaterOrEqual(t, trend.Strength, 50.0)
	assert.False(t, trend.GoldenCross) // ordering was already bullish five bars ago
}

func TestAnalyzeTrendBearishOrdering(t *testing.T) {
	trend, err := analyzeTrend("AAPL", rampPrices(300, -0.5, 250), time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, model.TrendBearish, trend.Trend)
	assert.Less(t, trend.MA50, trend.MA200)
	assert.Less(t, trend.Momentum, 0.0)
}

func TestAnalyzeTrendNeutralStrength(t *testing.T) {
	trend, err := analyzeTrend("AAPL", repeatPrices(100, 250), time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, model.TrendNeutral, trend.Trend)
	assert.Equal(t, 0.0, trend.Momentum)
	assert.Equal(t, 25.0, trend.Strength)
	assert.False(t, trend.GoldenCross)
	assert.False(t, trend.DeathCross)
}

func TestAnalyzeTrendGoldenCross(t *testing.T) {
	// Flat history with the entire rally inside the cross lookback window:
	// five bars ago SMA50 equaled SMA200, now it is above.
	prices := append(repeatPrices(100, 245), repeatPrices(200, 5)...)
	trend, err := analyzeTrend("AAPL", prices, time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, trend.GoldenCross)
	assert.False(t, trend.DeathCross)
	assert.Equal(t, model.TrendBullish, trend.Trend)
}

func TestAnalyzeTrendDeathCross(t *testing.T) {
	prices := append(repeatPrices(100, 245), repeatPrices(50, 5)...)
	trend, err := analyzeTrend("AAPL", prices, time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, trend.DeathCross)
	assert.False(t, trend.GoldenCross)
	assert.Equal(t, model.TrendBearish, trend.Trend)
}

func TestSupportResistanceInset(t *testing.T) {
	// Window spans 100..149; 10% inset pulls both levels inside the range.
	prices := rampPrices(100, 1, 50)
	support, resistance := supportResistance(prices)

	assert.InDelta(t, 104.9, support, 1e-9)
	assert.InDelta(t, 144.1, resistance, 1e-9)
	assert.Less(t, support, resistance)
}

func TestSupportResistanceFlatWindow(t *testing.T) {
	support, resistance := supportResistance(repeatPrices(100, 50))
	assert.Equal(t, 100.0, support)
	assert.Equal(t, 100.0, resistance)
}
