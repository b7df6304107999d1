package app

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/token"
)

// Helper to build a quote for ranking
func rankQuote(source, amountOut string, impact, gasUSD float64, route ...domain.Hop) *domain.Quote {
	if len(route) == 0 {
		route = []domain.Hop{{
			TokenIn:      token.WETH,
			TokenOut:     token.USDC,
			ProtocolName: source,
		}}
	}
	return &domain.Quote{
		ID:                 domain.NewQuoteID(source),
		SourceName:         source,
		TokenIn:            token.WETH,
		TokenOut:           token.USDC,
		AmountIn:           decimal.RequireFromString("1"),
		AmountOut:          decimal.RequireFromString(amountOut),
		PriceImpactPercent: impact,
		GasCostUSD:         gasUSD,
		Route:              route,
	}
}

func TestRanker_Rank_BestFirst(t *testing.T) {
	r := NewRanker(DefaultRankerConfig(), nil)

	quotes := []*domain.Quote{
		rankQuote("zeroex", "3390", 0.1, 5),
		rankQuote("uniswap_v3", "3400", 0.1, 5),
		rankQuote("openocean", "3350", 0.1, 5),
	}

	result, err := r.Rank(quotes)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	if result.BestQuote.SourceName != "uniswap_v3" {
		t.Errorf("BestQuote = %s, want uniswap_v3", result.BestQuote.SourceName)
	}
	if result.AllQuotes[0] != result.BestQuote {
		t.Error("AllQuotes[0] should be BestQuote")
	}
	wantOrder := []string{"uniswap_v3", "zeroex", "openocean"}
	for i, want := range wantOrder {
		if result.AllQuotes[i].SourceName != want {
			t.Errorf("AllQuotes[%d] = %s, want %s", i, result.AllQuotes[i].SourceName, want)
		}
	}
}

func TestRanker_Rank_DeterministicAcrossArrivalOrders(t *testing.T) {
	r := NewRanker(DefaultRankerConfig(), nil)

	quotes := []*domain.Quote{
		rankQuote("uniswap_v3", "3400.123456", 0.2, 12),
		rankQuote("zeroex", "3401.5", 1.1, 9),
		rankQuote("openocean", "3400.123456", 0.2, 12),
		rankQuote("sushiswap", "3350", 0.05, 4),
	}

	baseline, err := r.Rank(quotes)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]*domain.Quote, len(quotes))
		copy(shuffled, quotes)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		result, err := r.Rank(shuffled)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		for j := range baseline.AllQuotes {
			if result.AllQuotes[j].SourceName != baseline.AllQuotes[j].SourceName {
				t.Fatalf("iteration %d: position %d = %s, want %s",
					i, j, result.AllQuotes[j].SourceName, baseline.AllQuotes[j].SourceName)
			}
		}
	}
}

func TestRanker_Rank_TieBreakFewerHops(t *testing.T) {
	r := NewRanker(DefaultRankerConfig(), nil)

	multiHop := rankQuote("zeroex", "3400", 0, 0,
		domain.Hop{TokenIn: token.WETH, TokenOut: token.DAI, ProtocolName: "UniswapV3"},
		domain.Hop{TokenIn: token.DAI, TokenOut: token.USDC, ProtocolName: "Curve"},
	)
	singleHop := rankQuote("uniswap_v3", "3400", 0, 0)

	result, err := r.Rank([]*domain.Quote{multiHop, singleHop})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if result.BestQuote.SourceName != "uniswap_v3" {
		t.Errorf("tied scores should prefer fewer hops, got %s", result.BestQuote.SourceName)
	}
}

func TestRanker_Rank_TieBreakSourceName(t *testing.T) {
	r := NewRanker(DefaultRankerConfig(), nil)

	// Identical scores and hop counts: lexicographically smaller source wins.
	a := rankQuote("openocean", "3400", 0, 0)
	b := rankQuote("zeroex", "3400", 0, 0)

	for _, quotes := range [][]*domain.Quote{{a, b}, {b, a}} {
		result, err := r.Rank(quotes)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if result.BestQuote.SourceName != "openocean" {
			t.Errorf("BestQuote = %s, want openocean", result.BestQuote.SourceName)
		}
	}
}

func TestRanker_Rank_NearTieUsesEpsilon(t *testing.T) {
	r := NewRanker(DefaultRankerConfig(), nil)

	// Scores differ only in the 12th significant digit: treated as a tie, so
	// the source tie-break decides, not the float noise.
	a := rankQuote("zeroex", "3400.000000001", 0, 0)
	b := rankQuote("openocean", "3400.000000002", 0, 0)

	result, err := r.Rank([]*domain.Quote{a, b})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if result.BestQuote.SourceName != "openocean" {
		t.Errorf("BestQuote = %s, want openocean (tie-break)", result.BestQuote.SourceName)
	}
}

func TestRanker_Rank_GasConversionThroughUSDPrice(t *testing.T) {
	// Output token priced at $2: $10 gas costs 5 output units.
	usdOf := func(tok *token.Token) (float64, bool) { return 2, true }
	r := NewRanker(DefaultRankerConfig(), usdOf)

	cheapGas := rankQuote("zeroex", "1000", 0, 2)
	expensiveGas := rankQuote("uniswap_v3", "1003", 0, 10)

	// zeroex: 1000 - 1 = 999; uniswap: 1003 - 5 = 998
	result, err := r.Rank([]*domain.Quote{cheapGas, expensiveGas})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if result.BestQuote.SourceName != "zeroex" {
		t.Errorf("BestQuote = %s, want zeroex", result.BestQuote.SourceName)
	}
}

func TestRanker_Rank_EmptyIsInvalidState(t *testing.T) {
	r := NewRanker(DefaultRankerConfig(), nil)

	_, err := r.Rank(nil)
	if !apperror.Has(err, apperror.CodeInvalidState) {
		t.Errorf("Rank(nil) = %v, want INVALID_STATE", err)
	}
}

func TestRanker_Rank_SetsValidityWindow(t *testing.T) {
	cfg := DefaultRankerConfig()
	r := NewRanker(cfg, nil)

	result, err := r.Rank([]*domain.Quote{rankQuote("zeroex", "3400", 0, 0)})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if got := result.ExpiresAt.Sub(result.RequestedAt); got != cfg.ResultTTL {
		t.Errorf("validity window = %s, want %s", got, cfg.ResultTTL)
	}
}
