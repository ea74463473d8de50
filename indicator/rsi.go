package indicator

// DefaultRSIPeriod is the conventional 14-bar lookback.
const DefaultRSIPeriod = 14

// RSIResult carries the oscillator value and its overbought/oversold read.
type RSIResult struct {
	Value  float64 `json:"value"`
	Signal Signal  `json:"signal"`
}

// RSI computes the Relative Strength Index with Wilder smoothing over the
// close series. Needs period+1 closes. A flat series has no gains and no
// losses and reads 50 rather than dividing by zero.
func RSI(closes []float64, period int) (*RSIResult, error) {
	if len(closes) < period+1 {
		return nil, insufficient("RSI", period+1, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	var value float64
	switch {
	case avgGain == 0 && avgLoss == 0:
		value = 50
	case avgLoss == 0:
		value = 100
	default:
		rs := avgGain / avgLoss
		value = 100 - 100/(1+rs)
	}

	signal := SignalNeutral
	switch {
	case value > 70:
		signal = SignalOverbought
	case value < 30:
		signal = SignalOversold
	}
	return &RSIResult{Value: value, Signal: signal}, nil
}
