package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
)

const (
	handshakeTimeout   = 5 * time.Second
	heartbeatInterval  = 10 * time.Second
	heartbeatWriteWait = 5 * time.Second
	// bookStaleAfter bounds how old a streamed quote may be before
	// FetchQuote stops serving it and the chain falls through to REST.
	bookStaleAfter = 2 * time.Minute
)

// FinnhubStream is the primary streaming adapter: one supervised websocket
// connection with backoff reconnect. After every reconnect it resubscribes
// to the current desired set, so universe changes made while the link was
// down are never lost.
type FinnhubStream struct {
	url       string
	logger    *zap.Logger
	pingEvery time.Duration

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	desired   map[string]struct{}
	book      map[string]model.Quote
	handlers  []func(model.Quote)

	// OnStateChange, when set, observes connect/disconnect transitions.
	OnStateChange func(connected bool)

	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewFinnhubStream(wsURL, apiKey string, logger *zap.Logger) *FinnhubStream {
	return &FinnhubStream{
		url:       fmt.Sprintf("%s?token=%s", wsURL, apiKey),
		logger:    logger,
		pingEvery: heartbeatInterval,
		desired:   make(map[string]struct{}),
		book:      make(map[string]model.Quote),
	}
}

func (s *FinnhubStream) Name() string { return SourceFinnhub }

// Run owns the connection for its lifetime: connect, resubscribe, read until
// failure, back off, repeat. It returns when ctx ends.
func (s *FinnhubStream) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0 // reconnect forever

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.connect(ctx); err != nil {
			wait := policy.NextBackOff()
			s.logger.Warn("stream connect failed, backing off",
				zap.Error(err), zap.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		policy.Reset()

		s.readLoop(ctx)
		s.setConnected(false, nil)
		if ctx.Err() != nil {
			return
		}
		s.logger.Info("stream disconnected, reconnecting")
	}
}

func (s *FinnhubStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s.setConnected(true, conn)

	// Resubscribe from the live desired set, not a snapshot taken at
	// subscription time.
	s.mu.RLock()
	symbols := make([]string, 0, len(s.desired))
	for symbol := range s.desired {
		symbols = append(symbols, symbol)
	}
	s.mu.RUnlock()

	for _, symbol := range symbols {
		if err := s.send(map[string]string{"type": "subscribe", "symbol": symbol}); err != nil {
			s.logger.Warn("resubscription failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	s.logger.Info("stream connected", zap.Int("subscriptions", len(symbols)))
	go s.heartbeat(ctx, conn)
	return nil
}

type finnhubMessage struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
		Volume float64 `json:"v"`
		TimeMs int64   `json:"t"`
	} `json:"data"`
}

func (s *FinnhubStream) readLoop(ctx context.Context) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("stream read failed", zap.Error(err))
			}
			conn.Close()
			return
		}

		var msg finnhubMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug("skipping malformed stream message", zap.Error(err))
			continue
		}
		if msg.Type != "trade" {
			continue
		}

		for _, trade := range msg.Data {
			quote := s.normalize(trade.Symbol, trade.Price, trade.Volume, trade.TimeMs)
			s.mu.Lock()
			s.book[quote.Symbol] = quote
			handlers := s.handlers
			s.mu.Unlock()

			for _, handler := range handlers {
				handler(quote)
			}
		}
	}
}

func (s *FinnhubStream) normalize(symbol string, price, volume float64, timeMs int64) model.Quote {
	ts := time.UnixMilli(timeMs).UTC()
	if timeMs == 0 {
		ts = time.Now().UTC()
	}
	canonical := model.CanonicalSymbol(symbol)

	// Streamed trades carry no day context; keep what the book already has.
	s.mu.RLock()
	previous, hasPrevious := s.book[canonical]
	s.mu.RUnlock()

	quote := model.Quote{
		Symbol:       canonical,
		Price:        price,
		Volume:       volume,
		Source:       SourceFinnhub,
		Timestamp:    ts,
		Session:      marketSession(ts),
		IsMarketOpen: marketSession(ts) == model.SessionRegular,
	}
	if hasPrevious {
		quote.DayHigh = previous.DayHigh
		quote.DayLow = previous.DayLow
		quote.PreviousClose = previous.PreviousClose
		if previous.PreviousClose != 0 {
			quote.Change = price - previous.PreviousClose
			quote.ChangePercent = quote.Change / previous.PreviousClose * 100
		}
	}
	if price > quote.DayHigh {
		quote.DayHigh = price
	}
	if quote.DayLow == 0 || price < quote.DayLow {
		quote.DayLow = price
	}
	return quote
}

// FetchQuote serves the last streamed quote for symbol, letting the stream
// participate first in the failover chain. A stale or missing book entry is
// ErrNoQuote so polling falls through to the REST vendors.
func (s *FinnhubStream) FetchQuote(_ context.Context, symbol string) (*model.Quote, error) {
	s.mu.RLock()
	quote, ok := s.book[model.CanonicalSymbol(symbol)]
	s.mu.RUnlock()

	if !ok || time.Since(quote.Timestamp) > bookStaleAfter {
		return nil, ErrNoQuote
	}
	return &quote, nil
}

// Subscribe replaces the desired symbol set, sending subscribe/unsubscribe
// deltas when connected. The desired set survives reconnects.
func (s *FinnhubStream) Subscribe(symbols []string) error {
	next := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		next[model.CanonicalSymbol(symbol)] = struct{}{}
	}

	s.mu.Lock()
	previous := s.desired
	s.desired = next
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return nil
	}

	for symbol := range next {
		if _, had := previous[symbol]; !had {
			if err := s.send(map[string]string{"type": "subscribe", "symbol": symbol}); err != nil {
				return fmt.Errorf("subscribe %s failed: %w", symbol, err)
			}
		}
	}
	for symbol := range previous {
		if _, keep := next[symbol]; !keep {
			if err := s.send(map[string]string{"type": "unsubscribe", "symbol": symbol}); err != nil {
				return fmt.Errorf("unsubscribe %s failed: %w", symbol, err)
			}
		}
	}
	return nil
}

func (s *FinnhubStream) OnMessage(handler func(model.Quote)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

// Connected reports whether the websocket link is currently up.
func (s *FinnhubStream) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Reconnect forces the current connection down; Run's supervision loop
// brings a fresh one up with the live subscription set.
func (s *FinnhubStream) Reconnect() error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *FinnhubStream) Close() error {
	s.stopOnce.Do(func() {
		s.mu.RLock()
		cancel := s.cancel
		conn := s.conn
		s.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			conn.Close()
		}
	})
	return nil
}

func (s *FinnhubStream) send(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket is not connected")
	}
	return s.conn.WriteJSON(payload)
}

// heartbeat pings on a fixed cadence. WriteControl is the only write method
// safe to call concurrently with the data writes in send; everything else
// must stay on one writer.
func (s *FinnhubStream) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			current := s.conn
			s.mu.RUnlock()
			if current != conn {
				return
			}
			deadline := time.Now().Add(heartbeatWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("heartbeat failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

func (s *FinnhubStream) setConnected(connected bool, conn *websocket.Conn) {
	s.mu.Lock()
	s.connected = connected
	s.conn = conn
	callback := s.OnStateChange
	s.mu.Unlock()

	if callback != nil {
		callback(connected)
	}
}
