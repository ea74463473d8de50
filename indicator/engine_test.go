package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
)

type countingBarSource struct {
	calls int
	bars  []model.AggregatedBar
}

func (s *countingBarSource) AggregateSeries(context.Context, string, model.BarPeriod, time.Time, time.Time) ([]model.AggregatedBar, error) {
	s.calls++
	return s.bars, nil
}

func TestAnalyzeCachesPerLookback(t *testing.T) {
	bars := make([]model.AggregatedBar, 60)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = model.AggregatedBar{
			Symbol: "AAPL",
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000,
		}
	}
	source := &countingBarSource{bars: bars}
	c := cache.NewMemoryCache(time.Minute)
	defer c.Close()
	engine := NewEngine(source, c, zap.NewNop())
	ctx := context.Background()

	_, err := engine.Analyze(ctx, "AAPL", model.Period5m, 40)
	require.NoError(t, err)
	_, err = engine.Analyze(ctx, "AAPL", model.Period5m, 60)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls, "different lookbacks must not share a cache entry")

	_, err = engine.Analyze(ctx, "AAPL", model.Period5m, 40)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls, "repeating a lookback is a cache hit")
}
