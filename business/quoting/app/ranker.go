package app

import (
	"math"
	"sort"
	"time"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
)

// scoreEpsilon is the relative difference below which two scores are
// considered a tie and the deterministic tie-break applies.
const scoreEpsilon = 1e-9

// RankerConfig holds ranking settings.
type RankerConfig struct {
	Score domain.ScoreConfig
	// ResultTTL sets how long an AggregatedResult stays valid.
	ResultTTL time.Duration
}

// DefaultRankerConfig returns the standard ranking settings.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		Score:     domain.DefaultScoreConfig(),
		ResultTTL: 15 * time.Second,
	}
}

// Ranker orders quotes by score and designates the best route. Its output is
// deterministic for a given quote set regardless of arrival order.
type Ranker struct {
	config RankerConfig
	usdOf  USDPriceFunc // nil = no conversion available
	now    func() time.Time
}

// NewRanker creates a Ranker. usdOf may be nil when no price feed is wired.
func NewRanker(cfg RankerConfig, usdOf USDPriceFunc) *Ranker {
	return &Ranker{config: cfg, usdOf: usdOf, now: time.Now}
}

// Rank scores all quotes and returns them best-first. Calling Rank with an
// empty slice is a caller bug (the collector already returns
// NO_QUOTES_AVAILABLE for empty rounds) and fails loudly with INVALID_STATE.
func (r *Ranker) Rank(quotes []*domain.Quote) (*domain.AggregatedResult, error) {
	if len(quotes) == 0 {
		return nil, apperror.New(apperror.CodeInvalidState,
			apperror.WithContext("rank called with zero quotes"))
	}

	scoreCfg := r.config.Score
	if r.usdOf != nil {
		if usd, ok := r.usdOf(quotes[0].TokenOut); ok {
			scoreCfg.OutputTokenUSDPrice = usd
		}
	}

	type scored struct {
		quote *domain.Quote
		score float64
	}
	ranked := make([]scored, len(quotes))
	for i, q := range quotes {
		ranked[i] = scored{quote: q, score: domain.Score(q, scoreCfg)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !scoresTied(a.score, b.score) {
			return a.score > b.score
		}
		if ha, hb := a.quote.HopCount(), b.quote.HopCount(); ha != hb {
			return ha < hb
		}
		return a.quote.SourceName < b.quote.SourceName
	})

	all := make([]*domain.Quote, len(ranked))
	for i, s := range ranked {
		all[i] = s.quote
	}

	now := r.now()
	return &domain.AggregatedResult{
		BestQuote:   all[0],
		AllQuotes:   all,
		RequestedAt: now,
		ExpiresAt:   now.Add(r.config.ResultTTL),
	}, nil
}

func scoresTied(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff == 0 {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return true
	}
	return diff/scale < scoreEpsilon
}
