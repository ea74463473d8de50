package indicator

import "github.com/Ruscigno/marketpulse/model"

// macdVoteWeight makes the MACD crossover count double in the composite
// vote; a confirmed crossover is a stronger read than a level-based signal.
const macdVoteWeight = 2.0

// Analysis is the full indicator read for one symbol. Components that could
// not be computed from the available history are nil and excluded from the
// composite vote.
type Analysis struct {
	Symbol     string            `json:"symbol"`
	RSI        *RSIResult        `json:"rsi,omitempty"`
	MACD       *MACDResult       `json:"macd,omitempty"`
	Bollinger  *BollingerResult  `json:"bollinger,omitempty"`
	SMA20      *MAResult         `json:"sma_20,omitempty"`
	EMA20      *MAResult         `json:"ema_20,omitempty"`
	Stochastic *StochasticResult `json:"stochastic,omitempty"`
	OBV        *OBVResult        `json:"obv,omitempty"`

	Overall      model.TrendDirection `json:"overall"`
	BullishScore float64              `json:"bullish_score"`
	BearishScore float64              `json:"bearish_score"`
}

// Compute runs every canonical indicator over the series and combines them
// into one overall call by weighted vote. Ties read neutral.
func Compute(symbol string, highs, lows, closes, volumes []float64) (*Analysis, error) {
	if len(closes) < DefaultRSIPeriod+1 {
		return nil, insufficient("composite", DefaultRSIPeriod+1, len(closes))
	}

	analysis := &Analysis{Symbol: model.CanonicalSymbol(symbol)}
	analysis.RSI, _ = RSI(closes, DefaultRSIPeriod)
	analysis.MACD, _ = MACD(closes)
	analysis.Bollinger, _ = Bollinger(closes)
	analysis.SMA20, _ = SMA(closes, 20)
	analysis.EMA20, _ = EMA(closes, 20)
	analysis.Stochastic, _ = Stochastic(highs, lows, closes)
	analysis.OBV, _ = OBV(closes, volumes)

	analysis.vote(closes)
	return analysis, nil
}

func (a *Analysis) vote(closes []float64) {
	addVote := func(signal Signal, weight float64) {
		switch signal {
		case SignalOversold, SignalLowerBreach, SignalAboveMA, SignalBullishCrossover:
			a.BullishScore += weight
		case SignalOverbought, SignalUpperBreach, SignalBelowMA, SignalBearishCrossover:
			a.BearishScore += weight
		}
	}

	if a.RSI != nil {
		addVote(a.RSI.Signal, 1)
	}
	if a.MACD != nil {
		addVote(a.MACD.Crossover, macdVoteWeight)
	}
	if a.Bollinger != nil {
		addVote(a.Bollinger.Signal, 1)
	}
	if a.SMA20 != nil {
		addVote(a.SMA20.Signal, 1)
	}
	if a.EMA20 != nil {
		addVote(a.EMA20.Signal, 1)
	}
	if a.Stochastic != nil {
		addVote(a.Stochastic.Signal, 1)
	}
	// A volume spike confirms the direction of the latest move rather than
	// carrying a direction of its own.
	if a.OBV != nil && a.OBV.Signal == SignalVolumeSpike && len(closes) >= 2 {
		switch {
		case closes[len(closes)-1] > closes[len(closes)-2]:
			a.BullishScore++
		case closes[len(closes)-1] < closes[len(closes)-2]:
			a.BearishScore++
		}
	}

	switch {
	case a.BullishScore > a.BearishScore:
		a.Overall = model.TrendBullish
	case a.BearishScore > a.BullishScore:
		a.Overall = model.TrendBearish
	default:
		a.Overall = model.TrendNeutral
	}
}
