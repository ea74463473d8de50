package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/retry"
)

const (
	alphaVantageURL      = "https://www.alphavantage.co/query"
	alphaVantageFunction = "GLOBAL_QUOTE"
)

type alphaVantageSource struct {
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewAlphaVantageSource builds the Alpha Vantage REST adapter. The circuit
// breaker opens after repeated failures so a dead vendor stops eating the
// chain's time budget.
func NewAlphaVantageSource(apiKey string, timeout time.Duration, logger *zap.Logger) QuoteSource {
	s := &alphaVantageSource{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alphavantage",
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

func (s *alphaVantageSource) Name() string { return SourceAlphaVantage }

// globalQuotePayload mirrors the vendor's numbered-key wire format.
type globalQuotePayload struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Open          string `json:"02. open"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		LatestDay     string `json:"07. latest trading day"`
		PreviousClose string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note string `json:"Note"`
}

func (s *alphaVantageSource) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
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

func (s *alphaVantageSource) fetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	query := url.Values{}
	query.Set("function", alphaVantageFunction)
	query.Set("symbol", symbol)
	query.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, alphaVantageURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphavantage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage non-200 response: %s", resp.Status)
	}

	var payload globalQuotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode alphavantage response: %w", err)
	}
	if payload.Note != "" {
		return nil, fmt.Errorf("alphavantage rate limit note: %s", payload.Note)
	}
	if payload.GlobalQuote.Symbol == "" {
		return nil, ErrNoQuote
	}

	return s.normalize(payload, symbol)
}

// normalize converts the vendor's decimal strings into the canonical quote.
// Parsing goes through shopspring decimal so "151.3300" style payloads do
// not pick up float artifacts before rounding.
func (s *alphaVantageSource) normalize(payload globalQuotePayload, symbol string) (*model.Quote, error) {
	q := payload.GlobalQuote

	price, err := parseDecimal(q.Price)
	if err != nil {
		return nil, fmt.Errorf("malformed price %q: %w", q.Price, err)
	}
	high, _ := parseDecimal(q.High)
	low, _ := parseDecimal(q.Low)
	volume, _ := parseDecimal(q.Volume)
	prevClose, _ := parseDecimal(q.PreviousClose)
	change, _ := parseDecimal(q.Change)
	changePct, _ := parseDecimal(strings.TrimSuffix(strings.TrimSpace(q.ChangePercent), "%"))

	now := time.Now().UTC()
	session := marketSession(now)
	return &model.Quote{
		Symbol:        model.CanonicalSymbol(symbol),
		Price:         price,
		Volume:        volume,
		Change:        change,
		ChangePercent: changePct,
		DayHigh:       high,
		DayLow:        low,
		PreviousClose: prevClose,
		Source:        SourceAlphaVantage,
		Timestamp:     now,
		IsMarketOpen:  session == model.SessionRegular,
		Session:       session,
	}, nil
}

func parseDecimal(value string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
