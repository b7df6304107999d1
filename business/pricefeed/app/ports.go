// Package app contains the application services for the pricefeed context.
package app

import (
	"context"

	"github.com/mgrau/dexquote/business/pricefeed/domain"
)

// PriceProvider streams top-of-book prices for a fixed set of exchange
// symbols. Implementations push every update through the registered handler
// and keep the latest point queryable.
type PriceProvider interface {
	// Connect starts the stream. Blocking until the initial connection is up.
	Connect(ctx context.Context) error
	// Close tears the stream down. Idempotent.
	Close() error
	// Latest returns the most recent point for symbol, ok=false before the
	// first update.
	Latest(symbol string) (domain.PricePoint, bool)
	// OnUpdate registers a handler invoked for every price update. Must be
	// called before Connect.
	OnUpdate(handler func(domain.PricePoint))
}
