package feed

import (
	"context"
	"errors"
	"time"

	"github.com/Ruscigno/marketpulse/model"
)

const (
	SourceFinnhub      = "finnhub"
	SourceAlphaVantage = "alphavantage"
	SourceYahoo        = "yahoo"
)

// ErrNoQuote means the vendor responded but had nothing for the symbol.
// Ingestion treats it like any other per-source failure and falls through
// the chain.
var ErrNoQuote = errors.New("no quote available")

// QuoteSource is the uniform adapter contract. REST vendors hit their API;
// streaming vendors answer from their live book.
type QuoteSource interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (*model.Quote, error)
}

// StreamingSource is a long-lived vendor connection. Subscribe may be called
// repeatedly as the active set changes; after a reconnect the adapter
// resubscribes to whatever set is current, never a stale snapshot.
type StreamingSource interface {
	QuoteSource
	Subscribe(symbols []string) error
	OnMessage(handler func(model.Quote))
	Reconnect() error
	Close() error
}

// marketSession tags a timestamp with the US equity session it falls in.
func marketSession(t time.Time) model.MarketSession {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return model.SessionRegular
	}
	local := t.In(loc)

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return model.SessionClosed
	}

	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return model.SessionPreMarket
	case minutes >= 9*60+30 && minutes < 16*60:
		return model.SessionRegular
	case minutes >= 16*60 && minutes < 20*60:
		return model.SessionAfterHours
	default:
		return model.SessionClosed
	}
}
