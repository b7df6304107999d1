package domain

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

// Helper to build a quote with just the fields scoring reads
func scoredQuote(amountOut string, impactPercent, gasUSD float64) *Quote {
	return &Quote{
		SourceName:         "test",
		AmountOut:          decimal.RequireFromString(amountOut),
		PriceImpactPercent: impactPercent,
		GasCostUSD:         gasUSD,
	}
}

func TestScore(t *testing.T) {
	cfg := DefaultScoreConfig()

	tests := []struct {
		name      string
		amountOut string
		impact    float64
		gasUSD    float64
		usdPrice  float64
		want      float64
	}{
		{
			name:      "no_impact_no_gas",
			amountOut: "1000",
			want:      1000,
		},
		{
			name:      "gas_converted_to_output_units",
			amountOut: "1000",
			gasUSD:    10,
			usdPrice:  1, // stablecoin output
			want:      990,
		},
		{
			name:      "gas_subtracted_as_usd_when_price_unknown",
			amountOut: "1000",
			gasUSD:    10,
			usdPrice:  0,
			want:      990,
		},
		{
			name:      "linear_penalty_below_threshold",
			amountOut: "100",
			impact:    2, // 2% of 100 = 2
			want:      98,
		},
		{
			name:      "penalty_capped_linear_at_threshold",
			amountOut: "100",
			impact:    3,
			want:      97,
		},
		{
			name:      "favorable_impact_not_penalized",
			amountOut: "100",
			impact:    -1.5,
			want:      100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			c.OutputTokenUSDPrice = tt.usdPrice
			got := Score(scoredQuote(tt.amountOut, tt.impact, tt.gasUSD), c)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestScore_SuperLinearAboveThreshold(t *testing.T) {
	cfg := DefaultScoreConfig()

	// Below the threshold each extra percent of impact costs the same. Above
	// it the marginal cost must grow.
	marginalBelow := Score(scoredQuote("100", 1, 0), cfg) - Score(scoredQuote("100", 2, 0), cfg)
	marginalAbove := Score(scoredQuote("100", 4, 0), cfg) - Score(scoredQuote("100", 5, 0), cfg)

	if marginalAbove <= marginalBelow {
		t.Errorf("marginal penalty above threshold (%f) should exceed below (%f)",
			marginalAbove, marginalBelow)
	}

	// And it keeps steepening: 5%->6% costs more than 4%->5%
	marginalHigher := Score(scoredQuote("100", 5, 0), cfg) - Score(scoredQuote("100", 6, 0), cfg)
	if marginalHigher <= marginalAbove {
		t.Errorf("penalty should steepen with impact: %f <= %f", marginalHigher, marginalAbove)
	}
}

func TestScore_HighImpactLosesDespiteHigherOutput(t *testing.T) {
	cfg := DefaultScoreConfig()

	// 2% more output but 10% price impact must not beat a clean quote.
	clean := Score(scoredQuote("1000", 0, 0), cfg)
	dirty := Score(scoredQuote("1020", 10, 0), cfg)

	if dirty >= clean {
		t.Errorf("high-impact quote scored %f, clean quote %f; clean should win", dirty, clean)
	}
}

func TestDefaultScoreConfig(t *testing.T) {
	cfg := DefaultScoreConfig()
	if cfg.ImpactThresholdPercent != 3.0 {
		t.Errorf("ImpactThresholdPercent = %f, want 3.0", cfg.ImpactThresholdPercent)
	}
	if cfg.ExcessImpactFactor != 0.5 {
		t.Errorf("ExcessImpactFactor = %f, want 0.5", cfg.ExcessImpactFactor)
	}
}
