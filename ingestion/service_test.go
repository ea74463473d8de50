package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/events"
	"github.com/Ruscigno/marketpulse/feed"
	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
	"github.com/Ruscigno/marketpulse/pkg/config"
	"github.com/Ruscigno/marketpulse/pkg/metrics"
	"github.com/Ruscigno/marketpulse/pkg/ratelimit"
)

var testMetrics = metrics.New("ingestion_test")

type memQuoteRepo struct {
	mu       sync.Mutex
	quotes   []model.Quote
	activity []model.SymbolActivity
	failAll  bool
}

func (m *memQuoteRepo) Insert(_ context.Context, quote *model.Quote) error {
	if m.failAll {
		return errors.New("db down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes = append(m.quotes, *quote)
	return nil
}

func (m *memQuoteRepo) History(_ context.Context, symbol string, from, to time.Time) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Quote
	for _, q := range m.quotes {
		if q.Symbol == symbol && !q.Timestamp.Before(from) && q.Timestamp.Before(to) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memQuoteRepo) LatestDistinct(_ context.Context, since time.Time) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]model.Quote)
	for _, q := range m.quotes {
		if q.Timestamp.Before(since) {
			continue
		}
		if prev, ok := latest[q.Symbol]; !ok || q.Timestamp.After(prev.Timestamp) {
			latest[q.Symbol] = q
		}
	}
	out := make([]model.Quote, 0, len(latest))
	for _, q := range latest {
		out = append(out, q)
	}
	return out, nil
}

func (m *memQuoteRepo) RecentActivity(_ context.Context, _ time.Time, _ int) ([]model.SymbolActivity, error) {
	return m.activity, nil
}

type memWatchlist struct {
	symbols []string
	err     error
}

func (m *memWatchlist) RecentSymbols(context.Context, time.Time) ([]string, error) {
	return m.symbols, m.err
}

type scriptedSource struct {
	name    string
	quote   *model.Quote
	err     error
	mu      sync.Mutex
	calls   int
	subbed  []string
	handler func(model.Quote)
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) FetchQuote(context.Context, string) (*model.Quote, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	q := *s.quote
	return &q, nil
}

func (s *scriptedSource) Subscribe(symbols []string) error {
	s.mu.Lock()
	s.subbed = append([]string(nil), symbols...)
	s.mu.Unlock()
	return nil
}

func (s *scriptedSource) OnMessage(handler func(model.Quote)) { s.handler = handler }
func (s *scriptedSource) Reconnect() error                    { return nil }
func (s *scriptedSource) Close() error                        { return nil }

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		PollInterval:      time.Hour,
		ResolveInterval:   time.Hour,
		MaxUniverseSize:   10,
		DefaultSymbols:    []string{"AAPL", "MSFT"},
		VolumeThreshold:   1e6,
		VolatilityPercent: 5,
	}
}

func newTestService(t *testing.T, repo *memQuoteRepo, watch *memWatchlist, sources ...feed.QuoteSource) (*Service, *events.Bus) {
	t.Helper()
	store := ratelimit.NewMemoryCounterStore()
	t.Cleanup(store.Close)

	c := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { c.Close() })

	bus := events.NewBus(zap.NewNop())
	t.Cleanup(bus.Close)

	resolver := NewResolver(repo, watch, testIngestConfig(), zap.NewNop())
	gate := ratelimit.NewGate(ratelimit.ThrottleOptions{MaxConcurrent: 4, QueueSize: 64})
	limiter := ratelimit.NewLimiter(store, zap.NewNop())

	svc := NewService(sources, repo, c, bus, resolver, gate, limiter, testMetrics,
		testIngestConfig(), config.LimiterConfig{
			VendorWindow:      time.Minute,
			VendorMaxRequests: 1000,
			InstanceCount:     1,
		}, time.Second, zap.NewNop())
	return svc, bus
}

func TestFailoverFirstSuccessWins(t *testing.T) {
	primary := &scriptedSource{name: "finnhub", err: feed.ErrNoQuote}
	secondary := &scriptedSource{name: "alphavantage", quote: &model.Quote{
		Symbol: "AAPL", Price: 150, Source: "alphavantage", Timestamp: time.Now().UTC(),
	}}
	tertiary := &scriptedSource{name: "yahoo", quote: &model.Quote{
		Symbol: "AAPL", Price: 149, Source: "yahoo", Timestamp: time.Now().UTC(),
	}}

	repo := &memQuoteRepo{}
	svc, _ := newTestService(t, repo, &memWatchlist{}, primary, secondary, tertiary)

	svc.fetchSymbol(context.Background(), "AAPL")

	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, secondary.callCount())
	assert.Equal(t, 0, tertiary.callCount(), "chain must stop at the first success")

	latest, ok := svc.Latest(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, "alphavantage", latest.Source)
}

func TestChainExhaustionIsNotFatal(t *testing.T) {
	primary := &scriptedSource{name: "finnhub", err: errors.New("timeout")}
	secondary := &scriptedSource{name: "yahoo", err: feed.ErrNoQuote}

	repo := &memQuoteRepo{}
	svc, _ := newTestService(t, repo, &memWatchlist{}, primary, secondary)

	svc.fetchSymbol(context.Background(), "AAPL")

	_, ok := svc.Latest(context.Background(), "AAPL")
	assert.False(t, ok)
	assert.Empty(t, repo.quotes)
}

func TestIngestPersistsCachesAndPublishes(t *testing.T) {
	repo := &memQuoteRepo{}
	svc, bus := newTestService(t, repo, &memWatchlist{})
	updates := bus.SubscribeQuotes()

	quote := model.Quote{Symbol: "aapl", Price: 150, Source: "finnhub", Timestamp: time.Now().UTC()}
	svc.Ingest(context.Background(), quote)

	require.Len(t, repo.quotes, 1)
	assert.Equal(t, "AAPL", repo.quotes[0].Symbol)

	latest, ok := svc.Latest(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, 150.0, latest.Price)

	select {
	case published := <-updates:
		assert.Equal(t, "AAPL", published.Symbol)
	case <-time.After(time.Second):
		t.Fatal("quote update was not published")
	}
}

func TestIngestDedupGuardDropsOutOfOrderQuote(t *testing.T) {
	repo := &memQuoteRepo{}
	svc, _ := newTestService(t, repo, &memWatchlist{})
	ctx := context.Background()

	now := time.Now().UTC()
	svc.Ingest(ctx, model.Quote{Symbol: "AAPL", Price: 151, Source: "finnhub", Timestamp: now})
	svc.Ingest(ctx, model.Quote{Symbol: "AAPL", Price: 150, Source: "yahoo", Timestamp: now.Add(-time.Minute)})

	latest, ok := svc.Latest(ctx, "AAPL")
	require.True(t, ok)
	assert.Equal(t, 151.0, latest.Price)
	assert.Equal(t, "finnhub", latest.Source)
	// The stale quote never reached history either.
	assert.Len(t, repo.quotes, 1)
}

func TestIngestRejectsInvalidQuotes(t *testing.T) {
	repo := &memQuoteRepo{}
	svc, _ := newTestService(t, repo, &memWatchlist{})
	ctx := context.Background()

	svc.Ingest(ctx, model.Quote{Symbol: "", Price: 100})
	svc.Ingest(ctx, model.Quote{Symbol: "AAPL", Price: 0})
	svc.Ingest(ctx, model.Quote{Symbol: "AAPL", Price: -5})

	assert.Empty(t, repo.quotes)
}

func TestIngestSurvivesPersistenceFailure(t *testing.T) {
	repo := &memQuoteRepo{failAll: true}
	svc, bus := newTestService(t, repo, &memWatchlist{})
	updates := bus.SubscribeQuotes()

	svc.Ingest(context.Background(), model.Quote{Symbol: "AAPL", Price: 150, Timestamp: time.Now().UTC()})

	// Cache and event flow still work when the database is down.
	_, ok := svc.Latest(context.Background(), "AAPL")
	assert.True(t, ok)
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("quote update was not published")
	}
}

func TestPollOnceCoversUniverse(t *testing.T) {
	source := &scriptedSource{name: "finnhub", quote: &model.Quote{
		Symbol: "AAPL", Price: 150, Source: "finnhub", Timestamp: time.Now().UTC(),
	}}
	repo := &memQuoteRepo{}
	svc, _ := newTestService(t, repo, &memWatchlist{}, source)

	svc.resolver.Resolve(context.Background()) // falls back to the two defaults
	svc.PollOnce(context.Background())

	assert.Equal(t, 2, source.callCount())
}

func TestSubscribeStreamsPushesUniverse(t *testing.T) {
	stream := &scriptedSource{name: "finnhub", err: feed.ErrNoQuote}
	repo := &memQuoteRepo{}
	svc, _ := newTestService(t, repo, &memWatchlist{}, stream)

	svc.subscribeStreams([]string{"AAPL", "MSFT"})
	assert.Equal(t, []string{"AAPL", "MSFT"}, stream.subbed)
}

func TestResolverUnionDedupAndCap(t *testing.T) {
	repo := &memQuoteRepo{activity: []model.SymbolActivity{
		{Symbol: "NVDA", Volume: 5e6, ChangePercent: 8},  // passes both screens
		{Symbol: "AAPL", Volume: 3e6, ChangePercent: 1},  // volume only
		{Symbol: "GME", Volume: 2e5, ChangePercent: -12}, // volatility only
		{Symbol: "IBM", Volume: 1e5, ChangePercent: 0.5}, // passes neither
	}}
	watch := &memWatchlist{symbols: []string{"AAPL", "TSLA"}}
	resolver := NewResolver(repo, watch, testIngestConfig(), zap.NewNop())

	universe := resolver.Resolve(context.Background())
	assert.ElementsMatch(t, []string{"AAPL", "TSLA", "NVDA", "GME"}, universe)
	// Watchlist symbols come first; duplicates collapse.
	assert.Equal(t, "AAPL", universe[0])
}

func TestResolverFallsBackToDefaults(t *testing.T) {
	resolver := NewResolver(&memQuoteRepo{}, &memWatchlist{}, testIngestConfig(), zap.NewNop())
	universe := resolver.Resolve(context.Background())
	assert.Equal(t, []string{"AAPL", "MSFT"}, universe)
}

func TestResolverCapsUniverseSize(t *testing.T) {
	cfg := testIngestConfig()
	cfg.MaxUniverseSize = 2
	watch := &memWatchlist{symbols: []string{"AAPL", "MSFT", "GOOGL", "AMZN"}}
	resolver := NewResolver(&memQuoteRepo{}, watch, cfg, zap.NewNop())

	universe := resolver.Resolve(context.Background())
	assert.Len(t, universe, 2)
}

func TestResolverSurvivesFailingScreens(t *testing.T) {
	watch := &memWatchlist{err: errors.New("db down")}
	repo := &memQuoteRepo{activity: []model.SymbolActivity{
		{Symbol: "NVDA", Volume: 5e6, ChangePercent: 2},
	}}
	resolver := NewResolver(repo, watch, testIngestConfig(), zap.NewNop())

	universe := resolver.Resolve(context.Background())
	assert.Equal(t, []string{"NVDA"}, universe)
}

func TestResolverContinuityKeepsUpdatingSymbols(t *testing.T) {
	repo := &memQuoteRepo{quotes: []model.Quote{
		{Symbol: "PLTR", Price: 25, Timestamp: time.Now().UTC().Add(-10 * time.Minute)},
	}}
	resolver := NewResolver(repo, &memWatchlist{}, testIngestConfig(), zap.NewNop())

	universe := resolver.Resolve(context.Background())
	assert.Contains(t, universe, "PLTR")
}
