package indicator

import (
	movingaverage "github.com/RobinUS2/golang-moving-average"
)

// maDeadband is the ±2% zone around a moving average inside which the price
// position reads neutral.
const maDeadband = 0.02

// MAResult is one moving-average read with the deadbanded price position.
type MAResult struct {
	Value  float64 `json:"value"`
	Signal Signal  `json:"signal"`
}

// SMA computes the simple moving average of the trailing n values.
func SMA(values []float64, n int) (*MAResult, error) {
	if len(values) < n {
		return nil, insufficient("SMA", n, len(values))
	}
	ma := movingaverage.New(n)
	for _, v := range values[len(values)-n:] {
		ma.Add(v)
	}
	return maResult(values[len(values)-1], ma.Avg()), nil
}

// EMA computes the exponential moving average over the whole series with a
// standard 2/(n+1) multiplier.
func EMA(values []float64, n int) (*MAResult, error) {
	if len(values) < n {
		return nil, insufficient("EMA", n, len(values))
	}
	series := emaSeries(values, n)
	return maResult(values[len(values)-1], series[len(series)-1]), nil
}

func maResult(price, average float64) *MAResult {
	result := &MAResult{Value: average, Signal: SignalNeutral}
	switch {
	case price > average*(1+maDeadband):
		result.Signal = SignalAboveMA
	case price < average*(1-maDeadband):
		result.Signal = SignalBelowMA
	}
	return result
}
