package indicator

import "math"

const (
	BollingerPeriod = 20
	BollingerWidth  = 2.0
)

// BollingerResult carries the band values at the latest bar and where the
// last close sits relative to them.
type BollingerResult struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	Signal Signal  `json:"signal"`
}

// Bollinger computes 20-period bands at ±2 standard deviations around the
// simple moving average of the trailing window.
func Bollinger(closes []float64) (*BollingerResult, error) {
	if len(closes) < BollingerPeriod {
		return nil, insufficient("Bollinger", BollingerPeriod, len(closes))
	}

	window := closes[len(closes)-BollingerPeriod:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))

	var variance float64
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(variance / float64(len(window)))

	result := &BollingerResult{
		Upper:  mean + BollingerWidth*stddev,
		Middle: mean,
		Lower:  mean - BollingerWidth*stddev,
		Signal: SignalNeutral,
	}

	price := closes[len(closes)-1]
	switch {
	case price > result.Upper:
		result.Signal = SignalUpperBreach
	case price < result.Lower:
		result.Signal = SignalLowerBreach
	}
	return result, nil
}
