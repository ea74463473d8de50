package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
)

// QuoteRepository persists normalized quotes. History is append-only; the
// "latest" view lives in the cache, not here.
type QuoteRepository interface {
	Insert(ctx context.Context, quote *model.Quote) error
	History(ctx context.Context, symbol string, from, to time.Time) ([]model.Quote, error)
	// LatestDistinct returns the most recent quote per symbol observed since
	// the given time, one row per symbol.
	LatestDistinct(ctx context.Context, since time.Time) ([]model.Quote, error)
	// RecentActivity returns the latest per-symbol volume and change since
	// the cutoff, most active first, for the universe resolver's screens.
	RecentActivity(ctx context.Context, since time.Time, limit int) ([]model.SymbolActivity, error)
}

type quoteRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewQuoteRepository(db *sqlx.DB, logger *zap.Logger) QuoteRepository {
	return &quoteRepository{db: db, logger: logger}
}

func (r *quoteRepository) Insert(ctx context.Context, quote *model.Quote) error {
	const query = `
		INSERT INTO quotes (
			symbol, price, bid, ask, volume, change, change_percent,
			day_high, day_low, previous_close, source, ts, is_market_open, session
		) VALUES (
			:symbol, :price, :bid, :ask, :volume, :change, :change_percent,
			:day_high, :day_low, :previous_close, :source, :ts, :is_market_open, :session
		)`
	if _, err := r.db.NamedExecContext(ctx, query, quote); err != nil {
		return fmt.Errorf("failed to insert quote for %s: %w", quote.Symbol, err)
	}
	return nil
}

func (r *quoteRepository) History(ctx context.Context, symbol string, from, to time.Time) ([]model.Quote, error) {
	const query = `
		SELECT symbol, price, bid, ask, volume, change, change_percent,
		       day_high, day_low, previous_close, source, ts, is_market_open, session
		FROM quotes
		WHERE symbol = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`
	var quotes []model.Quote
	if err := r.db.SelectContext(ctx, &quotes, query, model.CanonicalSymbol(symbol), from, to); err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", symbol, err)
	}
	return quotes, nil
}

func (r *quoteRepository) LatestDistinct(ctx context.Context, since time.Time) ([]model.Quote, error) {
	const query = `
		SELECT DISTINCT ON (symbol)
		       symbol, price, bid, ask, volume, change, change_percent,
		       day_high, day_low, previous_close, source, ts, is_market_open, session
		FROM quotes
		WHERE ts >= $1
		ORDER BY symbol, ts DESC`
	var quotes []model.Quote
	if err := r.db.SelectContext(ctx, &quotes, query, since); err != nil {
		return nil, fmt.Errorf("failed to load latest quotes: %w", err)
	}
	return quotes, nil
}

func (r *quoteRepository) RecentActivity(ctx context.Context, since time.Time, limit int) ([]model.SymbolActivity, error) {
	const query = `
		SELECT symbol, volume, change_percent, ts FROM (
			SELECT DISTINCT ON (symbol) symbol, volume, change_percent, ts
			FROM quotes
			WHERE ts >= $1
			ORDER BY symbol, ts DESC
		) latest
		ORDER BY volume DESC
		LIMIT $2`
	var activity []model.SymbolActivity
	if err := r.db.SelectContext(ctx, &activity, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to load recent activity: %w", err)
	}
	return activity, nil
}
