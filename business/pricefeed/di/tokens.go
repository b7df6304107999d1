// Package di contains dependency injection tokens for the pricefeed context.
package di

import (
	"github.com/mgrau/dexquote/business/pricefeed/app"
	"github.com/mgrau/dexquote/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PriceFeedService = di.NewToken[*app.Service]("pricefeed.Service")
)

// Private dependency tokens - internal to pricefeed module
var (
	PriceProvider = di.NewToken[app.PriceProvider]("pricefeed:priceProvider")
)

// Helper functions for type-safe access
func GetPriceFeedService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, PriceFeedService)
}

func GetPriceProvider(c di.ServiceRegistry) app.PriceProvider {
	return di.GetToken(c, PriceProvider)
}
