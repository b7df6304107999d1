package openocean

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/token"
)

func testAdapter() *Adapter {
	return &Adapter{registry: token.DefaultRegistry()}
}

func testRequest() domain.QuoteRequest {
	return domain.QuoteRequest{
		TokenIn:         token.WETH,
		TokenOut:        token.DAI,
		AmountIn:        decimal.RequireFromString("1"),
		SlippagePercent: 0.5,
	}
}

func singleDexStep(from, to, dex string) subRoute {
	return subRoute{
		From:  from,
		To:    to,
		Dexes: []pathDex{{Dex: dex, ID: dex + "-pool", Percentage: 100}},
	}
}

func TestNormalize_PreservesFullPrecision(t *testing.T) {
	data := &quoteData{
		OutAmount:   "1123456789012345678", // 1.123456789012345678 DAI
		PriceImpact: "0.09%",
	}

	quote, err := testAdapter().normalize(data, testRequest())
	if err != nil {
		t.Fatalf("normalize() error = %v", err)
	}

	if quote.AmountOut.String() != "1.123456789012345678" {
		t.Errorf("AmountOut = %q, precision lost", quote.AmountOut.String())
	}
	if quote.PriceImpactPercent != 0.09 {
		t.Errorf("PriceImpactPercent = %f, want 0.09", quote.PriceImpactPercent)
	}
}

func TestNormalize_AppliesSlippageToMinimum(t *testing.T) {
	data := &quoteData{OutAmount: "1000000000000000000000"} // 1000 DAI

	quote, err := testAdapter().normalize(data, testRequest())
	if err != nil {
		t.Fatalf("normalize() error = %v", err)
	}

	want := decimal.RequireFromString("995") // 1000 * (1 - 0.005)
	if !quote.AmountOutMinimum.Equal(want) {
		t.Errorf("AmountOutMinimum = %s, want %s", quote.AmountOutMinimum, want)
	}
}

func TestNormalize_ZeroOutAmountIsNoLiquidity(t *testing.T) {
	data := &quoteData{OutAmount: "0"}

	_, err := testAdapter().normalize(data, testRequest())
	if !apperror.Has(err, apperror.CodeNoLiquidity) {
		t.Errorf("normalize() = %v, want NO_LIQUIDITY", err)
	}
}

func TestNormalize_MalformedFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*quoteData)
	}{
		{"bad_out_amount", func(d *quoteData) { d.OutAmount = "not-a-number" }},
		{"fractional_out_amount", func(d *quoteData) { d.OutAmount = "1.5" }}, // base units are integers
		{"bad_impact", func(d *quoteData) { d.PriceImpact = "??%" }},
		{"bad_gas", func(d *quoteData) { d.EstimatedGas = "-1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &quoteData{OutAmount: "1000000000000000000"}
			tt.mutate(data)

			_, err := testAdapter().normalize(data, testRequest())
			if !apperror.Has(err, apperror.CodeNormalizationError) {
				t.Errorf("normalize() = %v, want NORMALIZATION_ERROR", err)
			}
		})
	}
}

func TestParseImpact(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.09%", 0.09, false},
		{"1.5", 1.5, false}, // some chains omit the suffix
		{"", 0, false},
		{"abc%", 0, true},
	}

	for _, tt := range tests {
		got, err := parseImpact(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseImpact(%q) = %f, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseImpact(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseImpact(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestFlattenRoute_EmptyPlanIsSingleHop(t *testing.T) {
	hops, err := testAdapter().flattenRoute(routePath{}, testRequest())
	if err != nil {
		t.Fatalf("flattenRoute() error = %v", err)
	}
	if len(hops) != 1 {
		t.Fatalf("got %d hops, want 1", len(hops))
	}
	if !hops[0].TokenIn.Equals(token.WETH) || !hops[0].TokenOut.Equals(token.DAI) {
		t.Errorf("hop should span the requested pair, got %s -> %s",
			hops[0].TokenIn.Symbol(), hops[0].TokenOut.Symbol())
	}
	if hops[0].SplitPercent != 0 {
		t.Errorf("SplitPercent = %f, want 0", hops[0].SplitPercent)
	}
}

func TestFlattenRoute_SequentialStepsResolveIntermediates(t *testing.T) {
	path := routePath{Routes: []route{{
		Percentage: 100,
		SubRoutes: []subRoute{
			singleDexStep(token.WETH.Address().Hex(), token.USDC.Address().Hex(), "Uniswap V3"),
			singleDexStep(token.USDC.Address().Hex(), token.DAI.Address().Hex(), "Curve"),
		},
	}}}

	hops, err := testAdapter().flattenRoute(path, testRequest())
	if err != nil {
		t.Fatalf("flattenRoute() error = %v", err)
	}
	if len(hops) != 2 {
		t.Fatalf("got %d hops, want 2", len(hops))
	}
	if !hops[0].TokenOut.Equals(token.USDC) || !hops[1].TokenIn.Equals(token.USDC) {
		t.Error("intermediate token should resolve to the registry's USDC")
	}
	if hops[0].ProtocolName != "Uniswap V3" || hops[1].ProtocolName != "Curve" {
		t.Errorf("protocols = %s, %s", hops[0].ProtocolName, hops[1].ProtocolName)
	}
}

func TestFlattenRoute_StepSplitAcrossDexes(t *testing.T) {
	path := routePath{Routes: []route{{
		Percentage: 100,
		SubRoutes: []subRoute{{
			From: token.WETH.Address().Hex(),
			To:   token.DAI.Address().Hex(),
			Dexes: []pathDex{
				{Dex: "Uniswap V3", ID: "uni-pool", Percentage: 60},
				{Dex: "SushiSwap", ID: "sushi-pool", Percentage: 40},
			},
		}},
	}}}

	hops, err := testAdapter().flattenRoute(path, testRequest())
	if err != nil {
		t.Fatalf("flattenRoute() error = %v", err)
	}
	if len(hops) != 2 {
		t.Fatalf("got %d hops, want 2 split legs", len(hops))
	}

	total := 0.0
	for _, h := range hops {
		total += h.SplitPercent
		if !h.TokenIn.Equals(token.WETH) || !h.TokenOut.Equals(token.DAI) {
			t.Errorf("split leg %s should span the same step", h.ProtocolName)
		}
	}
	if total != 100 {
		t.Errorf("split percentages sum to %f, want 100", total)
	}
}

func TestFlattenRoute_MultipleTopLevelRoutesCollapse(t *testing.T) {
	path := routePath{Routes: []route{
		{
			Percentage: 70,
			SubRoutes:  []subRoute{singleDexStep(token.WETH.Address().Hex(), token.DAI.Address().Hex(), "Uniswap V3")},
		},
		{
			Percentage: 30,
			SubRoutes: []subRoute{
				singleDexStep(token.WETH.Address().Hex(), token.USDC.Address().Hex(), "Curve"),
				singleDexStep(token.USDC.Address().Hex(), token.DAI.Address().Hex(), "Curve"),
			},
		},
	}}

	hops, err := testAdapter().flattenRoute(path, testRequest())
	if err != nil {
		t.Fatalf("flattenRoute() error = %v", err)
	}
	if len(hops) != 2 {
		t.Fatalf("got %d hops, want 2 collapsed split legs", len(hops))
	}
	if hops[0].SplitPercent != 70 || hops[1].SplitPercent != 30 {
		t.Errorf("splits = %f/%f, want 70/30", hops[0].SplitPercent, hops[1].SplitPercent)
	}
	for _, h := range hops {
		if !h.TokenIn.Equals(token.WETH) || !h.TokenOut.Equals(token.DAI) {
			t.Errorf("collapsed leg %s should span the requested pair", h.ProtocolName)
		}
	}
}

func TestFlattenRoute_EndpointsForcedToRequestTokens(t *testing.T) {
	// The API sometimes reports the native pseudo-address at the route edges;
	// the edges must still be the tokens the caller asked about.
	path := routePath{Routes: []route{{
		Percentage: 100,
		SubRoutes: []subRoute{
			singleDexStep(token.NativeAddress, token.USDC.Address().Hex(), "Uniswap V3"),
			singleDexStep(token.USDC.Address().Hex(), token.NativeAddress, "Curve"),
		},
	}}}

	hops, err := testAdapter().flattenRoute(path, testRequest())
	if err != nil {
		t.Fatalf("flattenRoute() error = %v", err)
	}
	if !hops[0].TokenIn.Equals(token.WETH) {
		t.Errorf("first hop in = %s, want WETH", hops[0].TokenIn.Symbol())
	}
	if !hops[len(hops)-1].TokenOut.Equals(token.DAI) {
		t.Errorf("last hop out = %s, want DAI", hops[len(hops)-1].TokenOut.Symbol())
	}
}

func TestFlattenRoute_UnresolvableIntermediateFails(t *testing.T) {
	path := routePath{Routes: []route{{
		Percentage: 100,
		SubRoutes: []subRoute{
			singleDexStep(token.WETH.Address().Hex(), "not-an-address", "Uniswap V3"),
			singleDexStep("not-an-address", token.DAI.Address().Hex(), "Curve"),
		},
	}}}

	_, err := testAdapter().flattenRoute(path, testRequest())
	if !apperror.Has(err, apperror.CodeNormalizationError) {
		t.Errorf("flattenRoute() = %v, want NORMALIZATION_ERROR", err)
	}
}

func TestResolveToken_UnknownAddressGetsPlaceholder(t *testing.T) {
	addr := "0x1111111111111111111111111111111111111111"
	tok := testAdapter().resolveToken(addr, 1)
	if tok == nil {
		t.Fatal("resolveToken() = nil for a well-formed address")
	}
	if tok.Decimals() != 18 {
		t.Errorf("Decimals() = %d, want 18 for a placeholder", tok.Decimals())
	}
	if len(tok.Symbol()) > 8 {
		t.Errorf("Symbol() = %q, want at most 8 chars", tok.Symbol())
	}
}
