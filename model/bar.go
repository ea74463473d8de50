package model

import (
	"fmt"
	"time"
)

// BarPeriod is a supported OHLCV aggregation period.
type BarPeriod string

const (
	Period1m  BarPeriod = "1m"
	Period5m  BarPeriod = "5m"
	Period15m BarPeriod = "15m"
	Period30m BarPeriod = "30m"
	Period1h  BarPeriod = "1h"
	Period4h  BarPeriod = "4h"
	Period1d  BarPeriod = "1d"
)

var barPeriodDurations = map[BarPeriod]time.Duration{
	Period1m:  time.Minute,
	Period5m:  5 * time.Minute,
	Period15m: 15 * time.Minute,
	Period30m: 30 * time.Minute,
	Period1h:  time.Hour,
	Period4h:  4 * time.Hour,
	Period1d:  24 * time.Hour,
}

// Duration returns the wall-clock length of the period.
func (p BarPeriod) Duration() (time.Duration, error) {
	d, ok := barPeriodDurations[p]
	if !ok {
		return 0, fmt.Errorf("unsupported bar period: %q", p)
	}
	return d, nil
}

// AggregatedBar is one OHLCV bar rolled up from normalized quote history.
// Invariants: High >= max(Open, Close), Low <= min(Open, Close),
// Volume equals the sum of constituent volumes.
type AggregatedBar struct {
	Symbol     string    `db:"symbol" json:"symbol"`
	Period     BarPeriod `db:"period" json:"period"`
	Open       float64   `db:"open" json:"open"`
	High       float64   `db:"high" json:"high"`
	Low        float64   `db:"low" json:"low"`
	Close      float64   `db:"close" json:"close"`
	Volume     float64   `db:"volume" json:"volume"`
	VWAP       float64   `db:"vwap" json:"vwap"`
	TradeCount int       `db:"trade_count" json:"trade_count"`
	CloseTime  time.Time `db:"close_time" json:"close_time"`
}
