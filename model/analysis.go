package model

import "time"

// MarketSentiment is the aggregate mood of the tracked universe.
type MarketSentiment string

const (
	SentimentBullish MarketSentiment = "bullish"
	SentimentBearish MarketSentiment = "bearish"
	SentimentNeutral MarketSentiment = "neutral"
)

// TrendDirection classifies a single symbol's trend.
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// MarketStatistics holds descriptive statistics over a trailing price window.
// Only computed above the documented minimum sample count.
type MarketStatistics struct {
	Symbol               string    `json:"symbol"`
	Mean                 float64   `json:"mean"`
	Median               float64   `json:"median"`
	StdDev               float64   `json:"std_dev"`
	Variance             float64   `json:"variance"`
	Min                  float64   `json:"min"`
	Max                  float64   `json:"max"`
	Percentile25         float64   `json:"percentile_25"`
	Percentile75         float64   `json:"percentile_75"`
	AnnualizedVolatility float64   `json:"annualized_volatility"`
	Momentum             float64   `json:"momentum"`
	RSI                  float64   `json:"rsi"`
	WindowSize           int       `json:"window_size"`
	SampleCount          int       `json:"sample_count"`
	ComputedAt           time.Time `json:"computed_at"`
}

// TrendAnalysis is the moving-average trend read for one symbol.
type TrendAnalysis struct {
	Symbol      string         `json:"symbol"`
	Trend       TrendDirection `json:"trend"`
	Strength    float64        `json:"strength"`
	Momentum    float64        `json:"momentum"`
	Support     float64        `json:"support"`
	Resistance  float64        `json:"resistance"`
	MA50        float64        `json:"ma_50"`
	MA200       float64        `json:"ma_200"`
	GoldenCross bool           `json:"golden_cross"`
	DeathCross  bool           `json:"death_cross"`
	Timestamp   time.Time      `json:"timestamp"`
}

// MarketMover is one entry in the overview rankings.
type MarketMover struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        float64 `json:"volume"`
}

// MarketOverview summarizes the last 24 hours across the tracked universe.
type MarketOverview struct {
	Gainers     []MarketMover   `json:"gainers"`
	Losers      []MarketMover   `json:"losers"`
	MostActive  []MarketMover   `json:"most_active"`
	Sentiment   MarketSentiment `json:"sentiment"`
	SymbolCount int             `json:"symbol_count"`
	GeneratedAt time.Time       `json:"generated_at"`
}
