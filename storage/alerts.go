package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/model"
)

// AlertStore is the evaluator's view of alert rules: load active rules,
// record trigger bookkeeping, expire overdue rules. Rule CRUD lives in the
// user-facing service.
type AlertStore interface {
	ActiveBySymbol(ctx context.Context, symbol string) ([]model.AlertRule, error)
	// RecordTrigger persists the status transition and trigger bookkeeping
	// written by the evaluator.
	RecordTrigger(ctx context.Context, alert *model.AlertRule) error
	// ExpireOverdue marks every active rule past its expiry as EXPIRED and
	// returns how many rows changed.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type alertStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewAlertStore(db *sqlx.DB, logger *zap.Logger) AlertStore {
	return &alertStore{db: db, logger: logger}
}

func (s *alertStore) ActiveBySymbol(ctx context.Context, symbol string) ([]model.AlertRule, error) {
	const query = `
		SELECT id, user_id, symbol, type, status, is_recurring, threshold, indicator,
		       trigger_count, last_trigger_price, last_triggered_at,
		       last_notification_at, expires_at, created_at, updated_at
		FROM alert_rules
		WHERE symbol = $1 AND status = $2
		ORDER BY created_at ASC`
	var rules []model.AlertRule
	if err := s.db.SelectContext(ctx, &rules, query, model.CanonicalSymbol(symbol), model.AlertStatusActive); err != nil {
		return nil, fmt.Errorf("failed to load active alerts for %s: %w", symbol, err)
	}
	return rules, nil
}

func (s *alertStore) RecordTrigger(ctx context.Context, alert *model.AlertRule) error {
	const query = `
		UPDATE alert_rules SET
			status = :status,
			trigger_count = :trigger_count,
			last_trigger_price = :last_trigger_price,
			last_triggered_at = :last_triggered_at,
			last_notification_at = :last_notification_at,
			updated_at = :updated_at
		WHERE id = :id`
	result, err := s.db.NamedExecContext(ctx, query, alert)
	if err != nil {
		return fmt.Errorf("failed to record alert trigger %s: %w", alert.ID, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("alert rule %s not found", alert.ID)
	}
	return nil
}

func (s *alertStore) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE alert_rules SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2`
	result, err := s.db.ExecContext(ctx, query, model.AlertStatusExpired, now, model.AlertStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to expire alerts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired alerts: %w", err)
	}
	return rows, nil
}
