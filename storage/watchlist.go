package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
)

// WatchlistStore reads user watchlists. Watchlist CRUD belongs to the user
// service; the resolver only needs recently touched symbols.
type WatchlistStore interface {
	// RecentSymbols returns distinct symbols appearing on any watchlist
	// updated since the cutoff.
	RecentSymbols(ctx context.Context, since time.Time) ([]string, error)
}

type watchlistStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewWatchlistStore(db *sqlx.DB, logger *zap.Logger) WatchlistStore {
	return &watchlistStore{db: db, logger: logger}
}

func (s *watchlistStore) RecentSymbols(ctx context.Context, since time.Time) ([]string, error) {
	const query = `
		SELECT DISTINCT symbol
		FROM watchlist_items
		WHERE updated_at >= $1
		ORDER BY symbol`
	var symbols []string
	if err := s.db.SelectContext(ctx, &symbols, query, since); err != nil {
		return nil, fmt.Errorf("failed to load watchlist symbols: %w", err)
	}
	for i, symbol := range symbols {
		symbols[i] = model.CanonicalSymbol(symbol)
	}
	return symbols, nil
}
