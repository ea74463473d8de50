package model

import (
	"strings"
	"time"
)

// MarketSession tags which trading session a quote was captured in.
type MarketSession string

const (
	SessionPreMarket  MarketSession = "PRE_MARKET"
	SessionRegular    MarketSession = "REGULAR"
	SessionAfterHours MarketSession = "AFTER_HOURS"
	SessionClosed     MarketSession = "CLOSED"
)

// Quote is the canonical per-symbol tick after vendor normalization.
// Exactly one "latest" quote per symbol lives in the cache at any time;
// history writes are append-only.
type Quote struct {
	Symbol        string        `db:"symbol" json:"symbol"`
	Price         float64       `db:"price" json:"price"`
	Bid           float64       `db:"bid" json:"bid"`
	Ask           float64       `db:"ask" json:"ask"`
	Volume        float64       `db:"volume" json:"volume"`
	Change        float64       `db:"change" json:"change"`
	ChangePercent float64       `db:"change_percent" json:"change_percent"`
	DayHigh       float64       `db:"day_high" json:"day_high"`
	DayLow        float64       `db:"day_low" json:"day_low"`
	PreviousClose float64       `db:"previous_close" json:"previous_close"`
	Source        string        `db:"source" json:"source"`
	Timestamp     time.Time     `db:"ts" json:"timestamp"`
	IsMarketOpen  bool          `db:"is_market_open" json:"is_market_open"`
	Session       MarketSession `db:"session" json:"session"`
}

// SymbolActivity is the per-symbol snapshot the universe resolver screens:
// latest volume and change within the lookback window.
type SymbolActivity struct {
	Symbol        string    `db:"symbol" json:"symbol"`
	Volume        float64   `db:"volume" json:"volume"`
	ChangePercent float64   `db:"change_percent" json:"change_percent"`
	UpdatedAt     time.Time `db:"ts" json:"updated_at"`
}

// CanonicalSymbol normalizes vendor symbol spellings to the uppercase form
// used as the partition key everywhere else.
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
