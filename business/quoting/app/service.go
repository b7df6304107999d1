package app

import (
	"context"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/logger"
)

// QuoteService is the cache-fronted entry point for one fan-out round:
// check the cache, otherwise collect, rank, store.
type QuoteService struct {
	collector *Collector
	ranker    *Ranker
	cache     *QuoteCache
	logger    logger.LoggerInterface
}

// NewQuoteService wires the collector, ranker and cache together.
func NewQuoteService(collector *Collector, ranker *Ranker, cache *QuoteCache, log logger.LoggerInterface) *QuoteService {
	return &QuoteService{
		collector: collector,
		ranker:    ranker,
		cache:     cache,
		logger:    log,
	}
}

// GetQuotes returns the ranked quotes for req, serving fresh cached results
// without re-querying. skipCache forces a live round (used by forced
// refresh); the fresh result still replaces the cached entry.
func (s *QuoteService) GetQuotes(ctx context.Context, req domain.QuoteRequest, skipCache bool) (*domain.AggregatedResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := CacheKey(req, nil)
	if !skipCache {
		if result, ok := s.cache.Get(key); ok {
			s.logger.Debug(ctx, "quote cache hit", "key", key)
			return result, nil
		}
	}

	quotes, err := s.collector.Collect(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.ranker.Rank(quotes)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, result)
	s.logger.Debug(ctx, "fan-out round complete",
		"pair", req.PairKey(),
		"quotes", len(result.AllQuotes),
		"best", result.BestQuote.SourceName,
	)
	return result, nil
}

// Sources returns the configured source names.
func (s *QuoteService) Sources() []string {
	return s.collector.Sources()
}

// Close releases the service's background resources, currently the cache
// sweep goroutine. Idempotent.
func (s *QuoteService) Close() {
	s.cache.Stop()
}
