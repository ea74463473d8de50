package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/retry"
)

const (
	yahooChartURL  = "https://query2.finance.yahoo.com/v8/finance/chart/%s?interval=1m&range=1d"
	yahooUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/91.0.4472.124"
)

type yahooSource struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewYahooSource builds the Yahoo Finance REST adapter, the last resort in
// the failover chain. No API key required.
func NewYahooSource(timeout time.Duration, logger *zap.Logger) QuoteSource {
	s := &yahooSource{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "yahoo",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("vendor circuit breaker state changed",
				zap.String("vendor", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return s
}

func (s *yahooSource) Name() string { return SourceYahoo }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string  `json:"symbol"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketVolume  float64 `json:"regularMarketVolume"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

func (s *yahooSource) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	var quote *model.Quote
	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = s.logger

	err := retry.Do(ctx, retryCfg, func() error {
		result, err := s.breaker.Execute(func() (interface{}, error) {
			return s.fetchQuote(ctx, symbol)
		})
		if err != nil {
			return err
		}
		quote = result.(*model.Quote)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *yahooSource) fetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	url := fmt.Sprintf(yahooChartURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo non-200 response: %s", resp.Status)
	}

	var chart yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("failed to decode yahoo response: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo API error: %v", chart.Chart.Error)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, ErrNoQuote
	}

	meta := chart.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return nil, ErrNoQuote
	}

	ts := time.Now().UTC()
	if meta.RegularMarketTime > 0 {
		ts = time.Unix(meta.RegularMarketTime, 0).UTC()
	}

	change := meta.RegularMarketPrice - meta.ChartPreviousClose
	changePct := 0.0
	if meta.ChartPreviousClose != 0 {
		changePct = change / meta.ChartPreviousClose * 100
	}

	session := marketSession(ts)
	return &model.Quote{
		Symbol:        model.CanonicalSymbol(symbol),
		Price:         meta.RegularMarketPrice,
		Volume:        meta.RegularMarketVolume,
		Change:        change,
		ChangePercent: changePct,
		DayHigh:       meta.RegularMarketDayHigh,
		DayLow:        meta.RegularMarketDayLow,
		PreviousClose: meta.ChartPreviousClose,
		Source:        SourceYahoo,
		Timestamp:     ts,
		IsMarketOpen:  session == model.SessionRegular,
		Session:       session,
	}, nil
}
