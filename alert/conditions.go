package alert

import (
	"context"
	"fmt"

	"github.com/Ruscigno/marketpulse/indicator"
	"github.com/Ruscigno/marketpulse/model"
)

// Delegated condition names accepted on TECHNICAL_INDICATOR rules.
const (
	ConditionRSIOversold      = "RSI_OVERSOLD"
	ConditionRSIOverbought    = "RSI_OVERBOUGHT"
	ConditionMACDBullishCross = "MACD_BULLISH_CROSSOVER"
	ConditionMACDBearishCross = "MACD_BEARISH_CROSSOVER"
	ConditionVolumeSpike      = "VOLUME_SPIKE"
	ConditionUpperBreach      = "BOLLINGER_UPPER_BREACH"
	ConditionLowerBreach      = "BOLLINGER_LOWER_BREACH"
)

// analysisSource is the slice of the indicator engine the conditions need.
type analysisSource interface {
	Analyze(ctx context.Context, symbol string, period model.BarPeriod, lookback int) (*indicator.Analysis, error)
}

// IndicatorConditions evaluates delegated technical conditions against the
// indicator engine's read of recent bars.
type IndicatorConditions struct {
	engine   analysisSource
	period   model.BarPeriod
	lookback int
}

func NewIndicatorConditions(engine analysisSource, period model.BarPeriod, lookback int) *IndicatorConditions {
	return &IndicatorConditions{engine: engine, period: period, lookback: lookback}
}

func (c *IndicatorConditions) Evaluate(ctx context.Context, symbol, condition string) (bool, error) {
	analysis, err := c.engine.Analyze(ctx, symbol, c.period, c.lookback)
	if err != nil {
		return false, err
	}

	switch condition {
	case ConditionRSIOversold:
		return analysis.RSI != nil && analysis.RSI.Signal == indicator.SignalOversold, nil
	case ConditionRSIOverbought:
		return analysis.RSI != nil && analysis.RSI.Signal == indicator.SignalOverbought, nil
	case ConditionMACDBullishCross:
		return analysis.MACD != nil && analysis.MACD.Crossover == indicator.SignalBullishCrossover, nil
	case ConditionMACDBearishCross:
		return analysis.MACD != nil && analysis.MACD.Crossover == indicator.SignalBearishCrossover, nil
	case ConditionVolumeSpike:
		return analysis.OBV != nil && analysis.OBV.Signal == indicator.SignalVolumeSpike, nil
	case ConditionUpperBreach:
		return analysis.Bollinger != nil && analysis.Bollinger.Signal == indicator.SignalUpperBreach, nil
	case ConditionLowerBreach:
		return analysis.Bollinger != nil && analysis.Bollinger.Signal == indicator.SignalLowerBreach, nil
	default:
		return false, fmt.Errorf("unknown technical condition: %q", condition)
	}
}
