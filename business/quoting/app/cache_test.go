package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/token"
)

func cacheRequest(amount string) domain.QuoteRequest {
	return domain.QuoteRequest{
		TokenIn:         token.WETH,
		TokenOut:        token.USDC,
		AmountIn:        decimal.RequireFromString(amount),
		SlippagePercent: 0.5,
	}
}

func cachedResult() *domain.AggregatedResult {
	q := goodQuote("uniswap_v3")
	return &domain.AggregatedResult{
		BestQuote:   q,
		AllQuotes:   []*domain.Quote{q},
		RequestedAt: time.Now(),
		ExpiresAt:   time.Now().Add(15 * time.Second),
	}
}

func TestCacheKey_CanonicalAmounts(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		sameKey bool
	}{
		{"trailing_zero", "1.50", "1.5", true},
		{"many_trailing_zeros", "2.000", "2", true},
		{"different_amounts", "1.5", "1.51", false},
		{"precision_preserved", "1.000000000000000001", "1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyA := CacheKey(cacheRequest(tt.a), nil)
			keyB := CacheKey(cacheRequest(tt.b), nil)
			if (keyA == keyB) != tt.sameKey {
				t.Errorf("CacheKey(%s) == CacheKey(%s) is %v, want %v",
					tt.a, tt.b, keyA == keyB, tt.sameKey)
			}
		})
	}
}

func TestCacheKey_DirectionMatters(t *testing.T) {
	fwd := cacheRequest("1")
	rev := fwd
	rev.TokenIn, rev.TokenOut = fwd.TokenOut, fwd.TokenIn

	if CacheKey(fwd, nil) == CacheKey(rev, nil) {
		t.Error("opposite swap directions must not share a cache key")
	}
}

func TestCacheKey_SourceSubset(t *testing.T) {
	req := cacheRequest("1")
	all := CacheKey(req, nil)
	subset := CacheKey(req, []string{"uniswap_v3"})
	if all == subset {
		t.Error("source-narrowed request must not share the all-sources key")
	}
}

func TestQuoteCache_HitAndExpiry(t *testing.T) {
	c := NewQuoteCache(QuoteCacheConfig{TTL: 50 * time.Millisecond})
	defer c.Stop()

	key := CacheKey(cacheRequest("1.5"), nil)
	result := cachedResult()

	if _, ok := c.Get(key); ok {
		t.Fatal("Get() on empty cache should miss")
	}

	c.Set(key, result)
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Get() after Set() should hit")
	}
	if got != result {
		t.Error("Get() returned a different result than stored")
	}

	// Cosmetically different amount hits the same entry
	if _, ok := c.Get(CacheKey(cacheRequest("1.50"), nil)); !ok {
		t.Error("canonically equal amount should hit the same entry")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("Get() after TTL should miss")
	}
}

func TestQuoteCache_Invalidate(t *testing.T) {
	c := NewQuoteCache(QuoteCacheConfig{TTL: time.Minute})
	defer c.Stop()

	key := CacheKey(cacheRequest("1"), nil)
	c.Set(key, cachedResult())
	c.Invalidate(key)

	if _, ok := c.Get(key); ok {
		t.Error("Get() after Invalidate() should miss")
	}
}

func TestQuoteCache_NewerRoundReplacesEntry(t *testing.T) {
	c := NewQuoteCache(QuoteCacheConfig{TTL: time.Minute})
	defer c.Stop()

	key := CacheKey(cacheRequest("1"), nil)
	first := cachedResult()
	second := cachedResult()

	c.Set(key, first)
	c.Set(key, second)

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Get() should hit")
	}
	if got != second {
		t.Error("Get() should return the most recently stored result")
	}
}
