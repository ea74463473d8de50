package indicator

// Standard MACD parameterization.
const (
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9

	// macdMinSamples = slow + signal: enough closes for the signal line to
	// have a previous value, so crossovers are detectable.
	macdMinSamples = MACDSlowPeriod + MACDSignalPeriod
)

// MACDResult carries the line values at the latest bar plus the crossover
// read between the previous and current bar.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Crossover Signal  `json:"crossover"`
}

// MACD computes the 12/26/9 Moving Average Convergence Divergence. The
// crossover fires only when the MACD line moves through the signal line
// between the previous and current bar, not merely while it sits on one side.
func MACD(closes []float64) (*MACDResult, error) {
	if len(closes) < macdMinSamples {
		return nil, insufficient("MACD", macdMinSamples, len(closes))
	}

	fast := emaSeries(closes, MACDFastPeriod)
	slow := emaSeries(closes, MACDSlowPeriod)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = fast[i] - slow[i]
	}
	signalLine := emaSeries(macdLine, MACDSignalPeriod)

	last := len(closes) - 1
	result := &MACDResult{
		MACD:      macdLine[last],
		Signal:    signalLine[last],
		Histogram: macdLine[last] - signalLine[last],
		Crossover: SignalNeutral,
	}

	prevDiff := macdLine[last-1] - signalLine[last-1]
	currDiff := result.Histogram
	switch {
	case prevDiff <= 0 && currDiff > 0:
		result.Crossover = SignalBullishCrossover
	case prevDiff >= 0 && currDiff < 0:
		result.Crossover = SignalBearishCrossover
	}
	return result, nil
}

// emaSeries seeds with the first value and smooths forward, returning a
// series aligned with the input.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	multiplier := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}
