package ingestion

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/config"
	"github.com/Ruscigno/marketpulse/storage"
)

const (
	watchlistLookback  = 7 * 24 * time.Hour
	activityLookback   = 24 * time.Hour
	continuityLookback = time.Hour
)

// Resolver decides which symbols the poller tracks. The active set is the
// union of watchlist activity, volume and volatility screens, and symbols
// already updating; capped, with a fixed default list when the union is
// empty.
type Resolver struct {
	quotes     storage.QuoteRepository
	watchlists storage.WatchlistStore
	cfg        config.IngestConfig
	logger     *zap.Logger

	mu      sync.RWMutex
	current []string
}

func NewResolver(quotes storage.QuoteRepository, watchlists storage.WatchlistStore, cfg config.IngestConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		quotes:     quotes,
		watchlists: watchlists,
		cfg:        cfg,
		logger:     logger,
		current:    append([]string(nil), cfg.DefaultSymbols...),
	}
}

// Current returns the last resolved active set.
func (r *Resolver) Current() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.current...)
}

// Resolve recomputes the active set. Every feeding query is best-effort: a
// failing source contributes nothing rather than failing the resolve.
func (r *Resolver) Resolve(ctx context.Context) []string {
	now := time.Now().UTC()
	seen := make(map[string]struct{})
	var universe []string

	add := func(symbols []string) {
		for _, symbol := range symbols {
			symbol = model.CanonicalSymbol(symbol)
			if symbol == "" {
				continue
			}
			if _, ok := seen[symbol]; ok {
				continue
			}
			seen[symbol] = struct{}{}
			universe = append(universe, symbol)
		}
	}

	watched, err := r.watchlists.RecentSymbols(ctx, now.Add(-watchlistLookback))
	if err != nil {
		r.logger.Warn("watchlist screen failed", zap.Error(err))
	}
	add(watched)

	activity, err := r.quotes.RecentActivity(ctx, now.Add(-activityLookback), r.cfg.MaxUniverseSize)
	if err != nil {
		r.logger.Warn("activity screen failed", zap.Error(err))
	}
	var active, volatile []string
	for _, entry := range activity {
		if entry.Volume > r.cfg.VolumeThreshold {
			active = append(active, entry.Symbol)
		}
		if entry.ChangePercent > r.cfg.VolatilityPercent || entry.ChangePercent < -r.cfg.VolatilityPercent {
			volatile = append(volatile, entry.Symbol)
		}
	}
	add(active)
	add(volatile)

	// Continuity: anything already updating stays tracked for another cycle.
	recent, err := r.quotes.LatestDistinct(ctx, now.Add(-continuityLookback))
	if err != nil {
		r.logger.Warn("continuity screen failed", zap.Error(err))
	}
	recentSymbols := make([]string, 0, len(recent))
	for _, quote := range recent {
		recentSymbols = append(recentSymbols, quote.Symbol)
	}
	add(recentSymbols)

	if len(universe) == 0 {
		universe = append([]string(nil), r.cfg.DefaultSymbols...)
		r.logger.Info("universe empty, falling back to defaults",
			zap.Int("size", len(universe)))
	}
	if len(universe) > r.cfg.MaxUniverseSize {
		universe = universe[:r.cfg.MaxUniverseSize]
	}

	r.mu.Lock()
	r.current = universe
	r.mu.Unlock()

	r.logger.Debug("symbol universe resolved", zap.Int("size", len(universe)))
	return r.Current()
}
