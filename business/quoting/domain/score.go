package domain

import "math"

// ScoreConfig controls how quotes are compared.
type ScoreConfig struct {
	// ImpactThresholdPercent is the price impact above which the penalty
	// turns super-linear. Default 3%.
	ImpactThresholdPercent float64
	// ExcessImpactFactor scales the quadratic penalty on impact beyond the
	// threshold.
	ExcessImpactFactor float64
	// OutputTokenUSDPrice converts gas cost (USD) into output-token units.
	// Zero means unknown; gas USD is then subtracted as-is, which only stays
	// fair when comparing quotes for the same output token.
	OutputTokenUSDPrice float64
}

// DefaultScoreConfig returns the standard scoring parameters.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		ImpactThresholdPercent: 3.0,
		ExcessImpactFactor:     0.5,
	}
}

// Score computes the comparable value of a quote:
//
//	score = amountOut - gasCost(in output units) - impactPenalty
//
// Gas is converted from USD into output-token units through
// OutputTokenUSDPrice. The impact penalty is linear up to the threshold (the
// value the trade already loses to impact) and grows quadratically beyond it,
// so a cheap-gas route cannot win on the back of unacceptable slippage.
// float64 is fine here: scores order quotes, they never feed back into
// on-chain amounts.
func Score(q *Quote, cfg ScoreConfig) float64 {
	out, _ := q.AmountOut.Float64()

	gas := q.GasCostUSD
	if cfg.OutputTokenUSDPrice > 0 {
		gas = q.GasCostUSD / cfg.OutputTokenUSDPrice
	}

	return out - gas - impactPenalty(out, q.PriceImpactPercent, cfg)
}

func impactPenalty(out, impactPercent float64, cfg ScoreConfig) float64 {
	impact := math.Max(impactPercent, 0) // favorable impact is not penalized
	threshold := cfg.ImpactThresholdPercent

	linear := math.Min(impact, threshold) / 100 * out

	excess := math.Max(impact-threshold, 0)
	if excess == 0 {
		return linear
	}
	// Quadratic in the excess: 2% over the threshold hurts four times as
	// much as 1% over.
	super := (excess/100 + cfg.ExcessImpactFactor*math.Pow(excess/100, 2)*100) * out
	return linear + super
}
