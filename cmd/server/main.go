package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/aggregation"
	"github.com/Ruscigno/marketpulse/alert"
	"github.com/Ruscigno/marketpulse/analysis"
	"github.com/Ruscigno/marketpulse/events"
	"github.com/Ruscigno/marketpulse/feed"
	"github.com/Ruscigno/marketpulse/indicator"
	"github.com/Ruscigno/marketpulse/ingestion"
	"github.com/Ruscigno/marketpulse/logging"
	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/cache"
	"github.com/Ruscigno/marketpulse/pkg/config"
	"github.com/Ruscigno/marketpulse/pkg/health"
	"github.com/Ruscigno/marketpulse/pkg/metrics"
	"github.com/Ruscigno/marketpulse/pkg/ratelimit"
	"github.com/Ruscigno/marketpulse/storage"
)

const (
	memorySweepInterval = time.Minute
	indicatorLookback   = 100
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.SetupLogger(cfg.LogFile)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	quotes := storage.NewQuoteRepository(db, logger)
	watchlists := storage.NewWatchlistStore(db, logger)
	alerts := storage.NewAlertStore(db, logger)

	// Redis, when configured, backs both the cache and the cluster-wide
	// rate-limit counters. Without it everything stays in-process.
	var (
		dataCache    cache.Cache
		counterStore ratelimit.CounterStore
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		dataCache = cache.NewRedisCache(client, logger)
		counterStore = ratelimit.NewRedisCounterStore(client)
		logger.Info("using redis backends", zap.String("addr", cfg.Redis.Addr))
	} else {
		memCache := cache.NewMemoryCache(memorySweepInterval)
		memStore := ratelimit.NewMemoryCounterStore()
		defer memStore.Close()
		dataCache = memCache
		counterStore = memStore
	}
	defer dataCache.Close()

	m := metrics.New("marketpulse")
	bus := events.NewBus(logger)
	defer bus.Close()

	limiter := ratelimit.NewLimiter(counterStore, logger)
	gate := ratelimit.NewGate(ratelimit.ThrottleOptions{
		MaxConcurrent: cfg.Limiter.FetchConcurrency,
		QueueSize:     cfg.Limiter.FetchQueueSize,
	})

	// Adapter chain in priority order: streaming book first, then REST.
	var sources []feed.QuoteSource
	connections := feed.NewConnectionManager(logger)
	if cfg.Feeds.FinnhubKey != "" {
		stream := feed.NewFinnhubStream(cfg.Feeds.FinnhubWSURL, cfg.Feeds.FinnhubKey, logger)
		stream.OnStateChange = func(connected bool) {
			value := 0.0
			if connected {
				value = 1.0
			}
			m.StreamConnected.With("source", feed.SourceFinnhub).Set(value)
		}
		connections.Add(stream)
		sources = append(sources, stream)
	}
	if cfg.Feeds.AlphaVantageKey != "" {
		sources = append(sources, feed.NewAlphaVantageSource(cfg.Feeds.AlphaVantageKey, cfg.Feeds.RequestTimeout, logger))
	}
	sources = append(sources, feed.NewYahooSource(cfg.Feeds.RequestTimeout, logger))

	resolver := ingestion.NewResolver(quotes, watchlists, cfg.Ingest, logger)
	ingest := ingestion.NewService(sources, quotes, dataCache, bus, resolver, gate, limiter, m,
		cfg.Ingest, cfg.Limiter, cfg.Feeds.RequestTimeout, logger)

	// Streamed trades bypass polling and flow straight into ingestion.
	if stream, ok := connections.Get(feed.SourceFinnhub); ok {
		stream.OnMessage(func(quote model.Quote) {
			ingest.Ingest(ctx, quote)
		})
	}

	aggregator := aggregation.NewAggregator(quotes, dataCache, bus, m, logger)
	engine := indicator.NewEngine(aggregator, dataCache, logger)
	analyzer := analysis.NewAnalyzer(quotes, dataCache, logger)

	conditions := alert.NewIndicatorConditions(engine, model.Period5m, indicatorLookback)
	// No news sentiment collaborator is deployed; those rules stay dormant.
	evaluator := alert.NewEvaluator(alerts, bus, conditions, nil, m, cfg.Ingest.AlertSweepInterval, logger)

	connections.Start(ctx)
	go ingest.Run(ctx)
	go evaluator.Run(ctx)
	go analyzer.PublishTrends(ctx, bus, resolver.Current, 24*time.Hour, cfg.Ingest.ResolveInterval)
	go exportCacheStats(ctx, dataCache, m)

	checker := health.NewChecker(db, dataCache, logger)
	if stream, ok := connections.Get(feed.SourceFinnhub); ok {
		if finnhub, ok := stream.(*feed.FinnhubStream); ok {
			checker.AddProbe("finnhub_stream", func(context.Context) error {
				if !finnhub.Connected() {
					return errors.New("websocket disconnected")
				}
				return nil
			})
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checker.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown failed", zap.Error(err))
	}
	if err := connections.Close(); err != nil {
		logger.Warn("stream shutdown failed", zap.Error(err))
	}
}

// exportCacheStats mirrors the cache's own hit and miss counters into the
// Prometheus gauges on a fixed cadence.
func exportCacheStats(ctx context.Context, dataCache cache.Cache, m *metrics.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := dataCache.Stats()
			m.CacheHits.Set(float64(stats.Hits))
			m.CacheMisses.Set(float64(stats.Misses))
		}
	}
}
