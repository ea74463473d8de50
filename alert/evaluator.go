package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/events"
	"github.com/Ruscigno/marketpulse/model"
	"github.com/Ruscigno/marketpulse/pkg/metrics"
	"github.com/Ruscigno/marketpulse/storage"
)

// debounceWindow suppresses renotification of the same rule after it fires.
const debounceWindow = 5 * time.Minute

// ConditionEvaluator resolves delegated rule conditions that need more
// context than the quote itself. Technical rules get the indicator bridge;
// news rules get an optional sentiment collaborator. A nil collaborator
// leaves its rules dormant.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, symbol, condition string) (bool, error)
}

// Evaluator consumes quote updates and fires matching active alert rules.
// Rule CRUD happens elsewhere; the evaluator only transitions status and
// trigger bookkeeping.
type Evaluator struct {
	store      storage.AlertStore
	bus        *events.Bus
	technical  ConditionEvaluator
	sentiment  ConditionEvaluator
	metrics    *metrics.Metrics
	logger     *zap.Logger
	sweepEvery time.Duration

	now func() time.Time
}

func NewEvaluator(store storage.AlertStore, bus *events.Bus, technical, sentiment ConditionEvaluator, m *metrics.Metrics, sweepEvery time.Duration, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		store:      store,
		bus:        bus,
		technical:  technical,
		sentiment:  sentiment,
		metrics:    m,
		logger:     logger,
		sweepEvery: sweepEvery,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes quote updates until ctx ends, sweeping expired rules on a
// fixed interval.
func (e *Evaluator) Run(ctx context.Context) {
	quotes := e.bus.SubscribeQuotes()
	ticker := time.NewTicker(e.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case quote, ok := <-quotes:
			if !ok {
				return
			}
			e.EvaluateQuote(ctx, quote)
		case <-ticker.C:
			e.SweepExpired(ctx)
		}
	}
}

// EvaluateQuote checks every active rule on the quote's symbol. Store
// failures are logged and skipped; evaluation retries on the next update.
func (e *Evaluator) EvaluateQuote(ctx context.Context, quote model.Quote) {
	rules, err := e.store.ActiveBySymbol(ctx, quote.Symbol)
	if err != nil {
		e.logger.Warn("failed to load alert rules",
			zap.String("symbol", quote.Symbol), zap.Error(err))
		return
	}

	for i := range rules {
		rule := rules[i]
		matched, err := e.matches(ctx, &rule, quote)
		if err != nil {
			e.logger.Warn("alert condition evaluation failed",
				zap.String("alert_id", rule.ID.String()),
				zap.String("type", string(rule.Type)),
				zap.Error(err))
			continue
		}
		if !matched || e.debounced(&rule) {
			continue
		}
		e.trigger(ctx, &rule, quote)
	}
}

func (e *Evaluator) matches(ctx context.Context, rule *model.AlertRule, quote model.Quote) (bool, error) {
	switch rule.Type {
	case model.AlertPriceAbove:
		return quote.Price > rule.Threshold, nil
	case model.AlertPriceBelow:
		return quote.Price < rule.Threshold, nil
	case model.AlertPriceChange:
		change := quote.ChangePercent
		if change < 0 {
			change = -change
		}
		return change >= rule.Threshold, nil
	case model.AlertVolumeSpike:
		return quote.Volume > rule.Threshold, nil
	case model.AlertTechnical:
		if e.technical == nil {
			return false, nil
		}
		return e.technical.Evaluate(ctx, rule.Symbol, rule.Indicator)
	case model.AlertNewsSentiment:
		if e.sentiment == nil {
			return false, nil
		}
		return e.sentiment.Evaluate(ctx, rule.Symbol, rule.Indicator)
	default:
		e.logger.Warn("unknown alert type skipped", zap.String("type", string(rule.Type)))
		return false, nil
	}
}

func (e *Evaluator) debounced(rule *model.AlertRule) bool {
	return rule.LastNotificationAt != nil && e.now().Sub(*rule.LastNotificationAt) < debounceWindow
}

func (e *Evaluator) trigger(ctx context.Context, rule *model.AlertRule, quote model.Quote) {
	now := e.now()
	price := quote.Price

	rule.TriggerCount++
	rule.LastTriggerPrice = &price
	rule.LastTriggeredAt = &now
	rule.LastNotificationAt = &now
	rule.UpdatedAt = now
	if !rule.Recurring {
		rule.Status = model.AlertStatusTriggered
	}

	if err := e.store.RecordTrigger(ctx, rule); err != nil {
		e.logger.Error("failed to record alert trigger",
			zap.String("alert_id", rule.ID.String()), zap.Error(err))
		return
	}

	e.metrics.AlertTriggers.With("type", string(rule.Type)).Add(1)
	e.logger.Info("alert triggered",
		zap.String("alert_id", rule.ID.String()),
		zap.String("symbol", rule.Symbol),
		zap.String("type", string(rule.Type)),
		zap.Float64("price", price))

	e.bus.PublishAlert(model.AlertTrigger{Alert: *rule, Quote: quote, TriggeredAt: now})
}

// SweepExpired flips active rules past their expiry to EXPIRED.
func (e *Evaluator) SweepExpired(ctx context.Context) {
	expired, err := e.store.ExpireOverdue(ctx, e.now())
	if err != nil {
		e.logger.Warn("alert expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		e.metrics.AlertsExpired.Add(float64(expired))
		e.logger.Info("expired alerts swept", zap.Int64("count", expired))
	}
}
