package aggregation

import (
	"context"
	"sort"
	"time"

	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
)

const (
	overviewWindow   = 24 * time.Hour
	overviewTopCount = 5
	overviewCacheKey = "overview:market"

	// sentimentRatio is how lopsided the gainer/loser split must be before
	// the overview calls the market anything other than neutral.
	sentimentRatio = 1.2
)

// MarketOverview ranks the last 24 hours of latest-per-symbol quotes into
// top gainers, losers, and most active, with an aggregate sentiment call.
func (a *Aggregator) MarketOverview(ctx context.Context) (*model.MarketOverview, error) {
	return cache.GetOrSetJSON(ctx, a.cache, overviewCacheKey, cache.TTLFor(cache.ClassStatistics), func(ctx context.Context) (*model.MarketOverview, error) {
		quotes, err := a.quotes.LatestDistinct(ctx, time.Now().UTC().Add(-overviewWindow))
		if err != nil {
			return nil, err
		}
		return buildOverview(quotes, time.Now().UTC()), nil
	})
}

func buildOverview(quotes []model.Quote, now time.Time) *model.MarketOverview {
	movers := make([]model.MarketMover, 0, len(quotes))
	for _, quote := range quotes {
		movers = append(movers, model.MarketMover{
			Symbol:        quote.Symbol,
			Price:         quote.Price,
			Change:        quote.Change,
			ChangePercent: quote.ChangePercent,
			Volume:        quote.Volume,
		})
	}

	overview := &model.MarketOverview{
		Gainers:     topBy(movers, func(a, b model.MarketMover) bool { return a.ChangePercent > b.ChangePercent }),
		Losers:      topBy(movers, func(a, b model.MarketMover) bool { return a.ChangePercent < b.ChangePercent }),
		MostActive:  topBy(movers, func(a, b model.MarketMover) bool { return a.Volume > b.Volume }),
		SymbolCount: len(movers),
		GeneratedAt: now,
	}

	var gainers, losers float64
	for _, mover := range movers {
		switch {
		case mover.ChangePercent > 0:
			gainers++
		case mover.ChangePercent < 0:
			losers++
		}
	}
	switch {
	case gainers > losers*sentimentRatio:
		overview.Sentiment = model.SentimentBullish
	case losers > gainers*sentimentRatio:
		overview.Sentiment = model.SentimentBearish
	default:
		overview.Sentiment = model.SentimentNeutral
	}
	return overview
}

func topBy(movers []model.MarketMover, less func(a, b model.MarketMover) bool) []model.MarketMover {
	ranked := make([]model.MarketMover, len(movers))
	copy(ranked, movers)
	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })
	if len(ranked) > overviewTopCount {
		ranked = ranked[:overviewTopCount]
	}
	return ranked
}
