package indicator

// Signal is the discrete read an indicator produces from a series.
type Signal string

const (
	SignalNeutral Signal = "neutral"

	SignalOverbought Signal = "overbought"
	SignalOversold   Signal = "oversold"

	SignalBullishCrossover Signal = "bullish_crossover"
	SignalBearishCrossover Signal = "bearish_crossover"

	SignalUpperBreach Signal = "upper_breach"
	SignalLowerBreach Signal = "lower_breach"

	SignalAboveMA Signal = "above"
	SignalBelowMA Signal = "below"

	SignalVolumeSpike Signal = "volume_spike"
)
