package indicator

const (
	StochasticKPeriod = 14
	StochasticDPeriod = 3

	// stochasticMinSamples gives StochasticDPeriod %K values to smooth into %D.
	stochasticMinSamples = StochasticKPeriod + StochasticDPeriod
)

// StochasticResult carries the %K/%D oscillator values and their combined
// overbought/oversold read.
type StochasticResult struct {
	K      float64 `json:"k"`
	D      float64 `json:"d"`
	Signal Signal  `json:"signal"`
}

// Stochastic computes the 14/3 stochastic oscillator. The signal fires only
// when %K and %D agree: both above 80 or both below 20.
func Stochastic(highs, lows, closes []float64) (*StochasticResult, error) {
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return nil, insufficient("Stochastic", stochasticMinSamples, min(len(highs), min(len(lows), n)))
	}
	if n < stochasticMinSamples {
		return nil, insufficient("Stochastic", stochasticMinSamples, n)
	}

	kValues := make([]float64, 0, StochasticDPeriod)
	for i := n - StochasticDPeriod; i < n; i++ {
		kValues = append(kValues, percentK(highs, lows, closes, i))
	}

	k := kValues[len(kValues)-1]
	var d float64
	for _, v := range kValues {
		d += v
	}
	d /= float64(len(kValues))

	result := &StochasticResult{K: k, D: d, Signal: SignalNeutral}
	switch {
	case k > 80 && d > 80:
		result.Signal = SignalOverbought
	case k < 20 && d < 20:
		result.Signal = SignalOversold
	}
	return result, nil
}

// percentK is the raw %K at index i over the trailing K-period window.
// A flat window reads 50.
func percentK(highs, lows, closes []float64, i int) float64 {
	lowest, highest := lows[i], highs[i]
	for j := i - StochasticKPeriod + 1; j <= i; j++ {
		if lows[j] < lowest {
			lowest = lows[j]
		}
		if highs[j] > highest {
			highest = highs[j]
		}
	}
	if highest == lowest {
		return 50
	}
	return (closes[i] - lowest) / (highest - lowest) * 100
}
