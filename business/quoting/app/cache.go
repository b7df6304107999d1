package app

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/cache"
)

// QuoteCacheConfig holds cache settings.
type QuoteCacheConfig struct {
	// TTL is short: quotes go stale quickly with on-chain price movement,
	// but rapid repeated UI renders should deduplicate.
	TTL time.Duration
	// SweepInterval controls the background sweep that reclaims entries for
	// keys never re-read. Zero disables it.
	SweepInterval time.Duration
}

// DefaultQuoteCacheConfig returns the standard cache settings.
func DefaultQuoteCacheConfig() QuoteCacheConfig {
	return QuoteCacheConfig{
		TTL:           15 * time.Second,
		SweepInterval: time.Minute,
	}
}

// QuoteCache stores AggregatedResults keyed by the canonical request shape.
// Entries are never mutated in place; a newer round replaces the whole entry.
type QuoteCache struct {
	inner *cache.Cache[string, *domain.AggregatedResult]
}

// NewQuoteCache creates a QuoteCache and starts its sweep goroutine. Call
// Stop when done.
func NewQuoteCache(cfg QuoteCacheConfig) *QuoteCache {
	return &QuoteCache{
		inner: cache.New(cfg.TTL,
			cache.WithSweepInterval[string, *domain.AggregatedResult](cfg.SweepInterval)),
	}
}

// CacheKey builds the canonical key for a request, optionally narrowed to a
// subset of sources. Amounts are canonicalized through decimal so that
// "1.50" and "1.5" hit the same entry.
func CacheKey(req domain.QuoteRequest, sources []string) string {
	parts := []string{
		req.TokenIn.ID().String(),
		req.TokenOut.ID().String(),
		canonicalAmount(req.AmountIn),
	}
	if len(sources) > 0 {
		parts = append(parts, strings.Join(sources, ","))
	}
	return strings.Join(parts, "|")
}

func canonicalAmount(d decimal.Decimal) string {
	// decimal's String strips insignificant trailing zeros, so cosmetically
	// different inputs canonicalize to one representation.
	return d.String()
}

// Get returns the cached result for key if still live.
func (c *QuoteCache) Get(key string) (*domain.AggregatedResult, bool) {
	e, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Set stores a result under key with the default TTL.
func (c *QuoteCache) Set(key string, result *domain.AggregatedResult) {
	c.inner.Set(key, result)
}

// Invalidate drops the entry for key, forcing the next lookup to miss.
func (c *QuoteCache) Invalidate(key string) {
	c.inner.Delete(key)
}

// Stats returns cumulative hit and miss counts.
func (c *QuoteCache) Stats() (hits, misses uint64) {
	return c.inner.Stats()
}

// Stop terminates the sweep goroutine. Idempotent.
func (c *QuoteCache) Stop() {
	c.inner.Stop()
}
