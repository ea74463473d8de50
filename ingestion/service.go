package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/events"
	"github.com/Ruscigno/marketpulse/feed"
	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
	"github.com/Ruscigno/marketpulse/pkg/config"
	"github.com/Ruscigno/marketpulse/pkg/metrics"
	"github.com/Ruscigno/marketpulse/pkg/ratelimit"
	"github.com/Ruscigno/marketpulse/storage"
)

// Service drives the poll cycle: resolve the universe, fan out one fetch per
// symbol through the throttle gate, walk the adapter chain, normalize, and
// publish. Per-source failures fall through the chain; a fully exhausted
// chain is a metric and the next tick retries.
type Service struct {
	sources  []feed.QuoteSource
	quotes   storage.QuoteRepository
	cache    cache.Cache
	bus      *events.Bus
	resolver *Resolver
	gate     *ratelimit.Gate
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	logger   *zap.Logger

	pollInterval    time.Duration
	resolveInterval time.Duration
	fetchTimeout    time.Duration
	vendorPolicy    ratelimit.Policy
}

func NewService(
	sources []feed.QuoteSource,
	quotes storage.QuoteRepository,
	c cache.Cache,
	bus *events.Bus,
	resolver *Resolver,
	gate *ratelimit.Gate,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	ingestCfg config.IngestConfig,
	limiterCfg config.LimiterConfig,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) *Service {
	vendorPolicy := ratelimit.Policy{
		Window:      limiterCfg.VendorWindow,
		MaxRequests: limiterCfg.VendorMaxRequests,
	}.PerInstance(limiterCfg.InstanceCount)

	return &Service{
		sources:         sources,
		quotes:          quotes,
		cache:           c,
		bus:             bus,
		resolver:        resolver,
		gate:            gate,
		limiter:         limiter,
		metrics:         m,
		logger:          logger,
		pollInterval:    ingestCfg.PollInterval,
		resolveInterval: ingestCfg.ResolveInterval,
		fetchTimeout:    fetchTimeout,
		vendorPolicy:    vendorPolicy,
	}
}

// Run polls until ctx ends. The universe is resolved immediately and then on
// its own interval; each poll tick fans out over the current set.
func (s *Service) Run(ctx context.Context) {
	universe := s.resolver.Resolve(ctx)
	s.subscribeStreams(universe)

	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	resolve := time.NewTicker(s.resolveInterval)
	defer resolve.Stop()

	s.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-resolve.C:
			universe = s.resolver.Resolve(ctx)
			s.subscribeStreams(universe)
		case <-poll.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce fans one fetch task per active symbol through the gate and waits
// for the cycle to finish.
func (s *Service) PollOnce(ctx context.Context) {
	universe := s.resolver.Current()
	s.metrics.ActiveSymbols.Set(float64(len(universe)))

	var wg sync.WaitGroup
	for _, symbol := range universe {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			err := s.gate.Do(ctx, symbol, func(ctx context.Context) error {
				s.fetchSymbol(ctx, symbol)
				return nil
			})
			if err != nil {
				var full *ratelimit.QueueFullError
				if errors.As(err, &full) {
					s.metrics.ThrottleOverflows.Add(1)
				}
				s.logger.Debug("fetch task not scheduled",
					zap.String("symbol", symbol), zap.Error(err))
			}
		}(symbol)
	}
	wg.Wait()
}

// fetchSymbol walks the adapter chain in priority order; the first source
// that yields a quote wins the cycle.
func (s *Service) fetchSymbol(ctx context.Context, symbol string) {
	for _, source := range s.sources {
		if err := s.limiter.Allow(ctx, "vendor:"+source.Name(), s.vendorPolicy); err != nil {
			s.metrics.RateLimitRejections.With("scope", "vendor").Add(1)
			s.logger.Debug("vendor budget exhausted, trying next source",
				zap.String("source", source.Name()), zap.String("symbol", symbol))
			continue
		}

		start := time.Now()
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		quote, err := source.FetchQuote(fetchCtx, symbol)
		cancel()
		s.metrics.ObserveFetch(source.Name(), start)

		if err != nil {
			s.metrics.SourceFailures.With("source", source.Name()).Add(1)
			if !errors.Is(err, feed.ErrNoQuote) {
				s.logger.Debug("source fetch failed",
					zap.String("source", source.Name()),
					zap.String("symbol", symbol), zap.Error(err))
			}
			continue
		}

		s.Ingest(ctx, *quote)
		return
	}

	s.metrics.ChainExhausted.With("symbol", symbol).Add(1)
	s.logger.Warn("all sources failed for symbol, retrying next cycle",
		zap.String("symbol", symbol))
}

// Ingest normalizes and publishes one quote. It is also the sink for
// streaming adapters' OnMessage handlers.
func (s *Service) Ingest(ctx context.Context, quote model.Quote) {
	quote.Symbol = model.CanonicalSymbol(quote.Symbol)
	if quote.Symbol == "" || quote.Price <= 0 {
		return
	}
	if quote.Timestamp.IsZero() {
		quote.Timestamp = time.Now().UTC()
	}

	// Dedup guard: never let an out-of-order vendor response overwrite a
	// newer cached quote.
	key := latestKey(quote.Symbol)
	var cached model.Quote
	if cache.GetJSON(ctx, s.cache, key, &cached) && cached.Timestamp.After(quote.Timestamp) {
		s.metrics.StaleDrops.With("source", quote.Source).Add(1)
		return
	}
	cache.SetJSON(ctx, s.cache, key, quote, cache.TTLFor(cache.ClassRealtime))

	if err := s.quotes.Insert(ctx, &quote); err != nil {
		s.logger.Error("failed to persist quote",
			zap.String("symbol", quote.Symbol), zap.Error(err))
	}

	s.metrics.QuotesIngested.With("source", quote.Source).Add(1)
	s.bus.PublishQuote(quote)
}

// Latest returns the cached latest quote for symbol, if fresh.
func (s *Service) Latest(ctx context.Context, symbol string) (*model.Quote, bool) {
	var quote model.Quote
	if cache.GetJSON(ctx, s.cache, latestKey(model.CanonicalSymbol(symbol)), &quote) {
		return &quote, true
	}
	return nil, false
}

// subscribeStreams pushes the resolved universe to every streaming source in
// the chain so reconnects resubscribe to the live set.
func (s *Service) subscribeStreams(universe []string) {
	for _, source := range s.sources {
		stream, ok := source.(feed.StreamingSource)
		if !ok {
			continue
		}
		if err := stream.Subscribe(universe); err != nil {
			s.logger.Warn("stream subscription update failed",
				zap.String("source", source.Name()), zap.Error(err))
		}
	}
}

func latestKey(symbol string) string {
	return fmt.Sprintf("quote:%s", symbol)
}
