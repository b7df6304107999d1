// Package app contains application services and port definitions for the
// quoting context.
package app

import (
	"context"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/token"
)

// SourceAdapter is the uniform interface to one liquidity source. Adapters
// return apperror codes (SOURCE_TIMEOUT, SOURCE_UNAVAILABLE, INVALID_RESPONSE,
// NO_LIQUIDITY, NORMALIZATION_ERROR) for all expected failures; they never
// panic and never leak raw transport errors. Each adapter enforces its own
// per-call timeout so one slow source cannot stall the fan-out.
type SourceAdapter interface {
	// Name returns the stable source identifier used in ranking tie-breaks
	// and cache keys.
	Name() string

	// FetchQuote prices the request against this source. The returned quote
	// has passed domain validation.
	FetchQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
}

// USDPriceFunc reports the USD price of a token, or false when unknown.
// Wired from the pricefeed context; used for gas-cost conversion in scoring.
type USDPriceFunc func(t *token.Token) (float64, bool)
