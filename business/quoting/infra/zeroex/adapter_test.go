package zeroex

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/token"
)

func testRequest() domain.QuoteRequest {
	return domain.QuoteRequest{
		TokenIn:         token.WETH,
		TokenOut:        token.DAI,
		AmountIn:        decimal.RequireFromString("1"),
		SlippagePercent: 0.5,
	}
}

func TestNormalize_PreservesFullPrecision(t *testing.T) {
	// 18-decimal DAI amount: every digit must survive normalization.
	dto := &quoteResponse{
		BuyAmount:  "1123456789012345678", // 1.123456789012345678 DAI
		SellAmount: "1000000000000000000",
		Sources:    []quoteSource{{Name: "Uniswap_V3", Proportion: "1"}},
	}

	quote, err := normalize(dto, testRequest())
	if err != nil {
		t.Fatalf("normalize() error = %v", err)
	}

	want := decimal.RequireFromString("1.123456789012345678")
	if !quote.AmountOut.Equal(want) {
		t.Errorf("AmountOut = %s, want %s (exact)", quote.AmountOut, want)
	}
	if quote.AmountOut.String() != "1.123456789012345678" {
		t.Errorf("AmountOut.String() = %q, precision lost", quote.AmountOut.String())
	}
	if !quote.AmountIn.Equal(decimal.NewFromInt(1)) {
		t.Errorf("AmountIn = %s, want 1", quote.AmountIn)
	}
}

func TestNormalize_AppliesSlippageToMinimum(t *testing.T) {
	dto := &quoteResponse{
		BuyAmount:  "1000000000000000000000", // 1000 DAI
		SellAmount: "1000000000000000000",
		Sources:    []quoteSource{{Name: "Uniswap_V3", Proportion: "1"}},
	}

	quote, err := normalize(dto, testRequest())
	if err != nil {
		t.Fatalf("normalize() error = %v", err)
	}

	want := decimal.RequireFromString("995") // 1000 * (1 - 0.005)
	if !quote.AmountOutMinimum.Equal(want) {
		t.Errorf("AmountOutMinimum = %s, want %s", quote.AmountOutMinimum, want)
	}
}

func TestNormalize_ParsesPriceImpact(t *testing.T) {
	dto := &quoteResponse{
		BuyAmount:            "1000000000000000000",
		SellAmount:           "1000000000000000000",
		EstimatedPriceImpact: "1.42",
		Sources:              []quoteSource{{Name: "Curve", Proportion: "1"}},
	}

	quote, err := normalize(dto, testRequest())
	if err != nil {
		t.Fatalf("normalize() error = %v", err)
	}
	if quote.PriceImpactPercent != 1.42 {
		t.Errorf("PriceImpactPercent = %f, want 1.42", quote.PriceImpactPercent)
	}
}

func TestNormalize_MalformedFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*quoteResponse)
	}{
		{"bad_buy_amount", func(d *quoteResponse) { d.BuyAmount = "not-a-number" }},
		{"bad_sell_amount", func(d *quoteResponse) { d.SellAmount = "1.5" }}, // base units are integers
		{"bad_impact", func(d *quoteResponse) { d.EstimatedPriceImpact = "??" }},
		{"bad_gas", func(d *quoteResponse) { d.EstimatedGas = "-1" }},
		{"no_filled_sources", func(d *quoteResponse) {
			d.Sources = []quoteSource{{Name: "Uniswap_V3", Proportion: "0"}}
		}},
		{"bad_proportion", func(d *quoteResponse) {
			d.Sources = []quoteSource{{Name: "Uniswap_V3", Proportion: "lots"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dto := &quoteResponse{
				BuyAmount:  "1000000000000000000",
				SellAmount: "1000000000000000000",
				Sources:    []quoteSource{{Name: "Uniswap_V3", Proportion: "1"}},
			}
			tt.mutate(dto)

			_, err := normalize(dto, testRequest())
			if !apperror.Has(err, apperror.CodeNormalizationError) {
				t.Errorf("normalize() = %v, want NORMALIZATION_ERROR", err)
			}
		})
	}
}

func TestRouteFromSources_SingleSourceIsPlainHop(t *testing.T) {
	hops, err := routeFromSources([]quoteSource{
		{Name: "Uniswap_V3", Proportion: "1"},
		{Name: "SushiSwap", Proportion: "0"},
	}, testRequest())
	if err != nil {
		t.Fatalf("routeFromSources() error = %v", err)
	}
	if len(hops) != 1 {
		t.Fatalf("got %d hops, want 1", len(hops))
	}
	if hops[0].ProtocolName != "Uniswap_V3" {
		t.Errorf("ProtocolName = %s, want Uniswap_V3", hops[0].ProtocolName)
	}
	if hops[0].SplitPercent != 0 {
		t.Errorf("SplitPercent = %f, want 0 for a whole-step hop", hops[0].SplitPercent)
	}
}

func TestRouteFromSources_MultipleSourcesBecomeSplitLegs(t *testing.T) {
	hops, err := routeFromSources([]quoteSource{
		{Name: "Uniswap_V3", Proportion: "0.6"},
		{Name: "SushiSwap", Proportion: "0.4"},
		{Name: "Curve", Proportion: "0"},
	}, testRequest())
	if err != nil {
		t.Fatalf("routeFromSources() error = %v", err)
	}
	if len(hops) != 2 {
		t.Fatalf("got %d hops, want 2 split legs", len(hops))
	}

	total := 0.0
	for _, h := range hops {
		total += h.SplitPercent
		if !h.TokenIn.Equals(token.WETH) || !h.TokenOut.Equals(token.DAI) {
			t.Errorf("split leg %s should span the whole pair", h.ProtocolName)
		}
	}
	if total != 100 {
		t.Errorf("split percentages sum to %f, want 100", total)
	}
}

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode apperror.Code
		wantNil  bool
	}{
		{
			name:    "success_status_passes",
			status:  http.StatusOK,
			wantNil: true,
		},
		{
			name:     "throttled",
			status:   http.StatusTooManyRequests,
			wantCode: apperror.CodeRateLimitExceeded,
		},
		{
			name:   "no_liquidity",
			status: http.StatusBadRequest,
			body: `{"code":100,"reason":"Validation Failed","validationErrors":[
				{"field":"sellAmount","code":1004,"reason":"INSUFFICIENT_ASSET_LIQUIDITY"}]}`,
			wantCode: apperror.CodeNoLiquidity,
		},
		{
			name:     "other_bad_request",
			status:   http.StatusBadRequest,
			body:     `{"code":100,"reason":"Invalid token"}`,
			wantCode: apperror.CodeInvalidResponse,
		},
		{
			name:     "server_error",
			status:   http.StatusBadGateway,
			wantCode: apperror.CodeSourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapAPIError(tt.status, []byte(tt.body))
			if tt.wantNil {
				if err != nil {
					t.Fatalf("mapAPIError() = %v, want nil", err)
				}
				return
			}
			if !apperror.Has(err, tt.wantCode) {
				t.Errorf("mapAPIError() = %v, want %s", err, tt.wantCode)
			}
		})
	}
}
