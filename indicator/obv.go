package indicator

import (
	movingaverage "github.com/RobinUS2/golang-moving-average"
)

const (
	VolumeSMAPeriod = 20

	// volumeSpikeFactor is how far above the volume SMA the latest bar must
	// trade to count as a spike.
	volumeSpikeFactor = 2.0
)

// OBVResult carries cumulative on-balance volume and the volume spike read.
type OBVResult struct {
	OBV       float64 `json:"obv"`
	VolumeSMA float64 `json:"volume_sma"`
	Signal    Signal  `json:"signal"`
}

// OBV accumulates volume signed by close direction, and flags a spike when
// the latest volume exceeds twice the 20-bar volume average.
func OBV(closes, volumes []float64) (*OBVResult, error) {
	n := len(closes)
	if len(volumes) != n || n < VolumeSMAPeriod {
		got := n
		if len(volumes) < got {
			got = len(volumes)
		}
		return nil, insufficient("OBV", VolumeSMAPeriod, got)
	}

	var obv float64
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv += volumes[i]
		case closes[i] < closes[i-1]:
			obv -= volumes[i]
		}
	}

	ma := movingaverage.New(VolumeSMAPeriod)
	for _, v := range volumes[n-VolumeSMAPeriod:] {
		ma.Add(v)
	}
	volumeSMA := ma.Avg()

	result := &OBVResult{OBV: obv, VolumeSMA: volumeSMA, Signal: SignalNeutral}
	if volumeSMA > 0 && volumes[n-1] > volumeSpikeFactor*volumeSMA {
		result.Signal = SignalVolumeSpike
	}
	return result, nil
}
