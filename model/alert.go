package model

import (
	"time"

	"github.com/google/uuid"
)

// AlertType determines how a rule is evaluated against quote updates.
type AlertType string

const (
	AlertPriceAbove    AlertType = "PRICE_ABOVE"
	AlertPriceBelow    AlertType = "PRICE_BELOW"
	AlertPriceChange   AlertType = "PRICE_CHANGE"
	AlertVolumeSpike   AlertType = "VOLUME_SPIKE"
	AlertTechnical     AlertType = "TECHNICAL_INDICATOR"
	AlertNewsSentiment AlertType = "NEWS_SENTIMENT"
)

// AlertStatus is the lifecycle state of a rule.
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "ACTIVE"
	AlertStatusTriggered AlertStatus = "TRIGGERED"
	AlertStatusExpired   AlertStatus = "EXPIRED"
)

// AlertRule is a user-defined alert. Rules are created by the CRUD
// collaborator; the evaluator only transitions status and trigger bookkeeping.
type AlertRule struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	UserID    uuid.UUID   `db:"user_id" json:"user_id"`
	Symbol    string      `db:"symbol" json:"symbol"`
	Type      AlertType   `db:"type" json:"type"`
	Status    AlertStatus `db:"status" json:"status"`
	Recurring bool        `db:"is_recurring" json:"is_recurring"`

	// Threshold semantics depend on Type: target price for PRICE_ABOVE/BELOW,
	// percent for PRICE_CHANGE, share volume for VOLUME_SPIKE.
	Threshold float64 `db:"threshold" json:"threshold"`

	// Indicator holds the delegated condition for TECHNICAL_INDICATOR rules,
	// e.g. "RSI_OVERSOLD" or "MACD_BULLISH_CROSSOVER".
	Indicator string `db:"indicator" json:"indicator,omitempty"`

	TriggerCount       int        `db:"trigger_count" json:"trigger_count"`
	LastTriggerPrice   *float64   `db:"last_trigger_price" json:"last_trigger_price,omitempty"`
	LastTriggeredAt    *time.Time `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	LastNotificationAt *time.Time `db:"last_notification_at" json:"last_notification_at,omitempty"`
	ExpiresAt          *time.Time `db:"expires_at" json:"expires_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AlertTrigger is the event payload emitted when a rule fires.
type AlertTrigger struct {
	Alert       AlertRule `json:"alert"`
	Quote       Quote     `json:"quote"`
	TriggeredAt time.Time `json:"triggered_at"`
}
