// Package pricefeed implements the exchange price feed bounded context. It
// supplies USD reference prices for gas costing and display; it never prices
// the swap itself.
package pricefeed

import (
	"context"
	"time"

	"github.com/mgrau/dexquote/business/pricefeed/app"
	feedDI "github.com/mgrau/dexquote/business/pricefeed/di"
	"github.com/mgrau/dexquote/business/pricefeed/infra/binance"
	"github.com/mgrau/dexquote/internal/config"
	"github.com/mgrau/dexquote/internal/di"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/monolith"
	"github.com/mgrau/dexquote/internal/token"
)

// Module implements the pricefeed bounded context.
type Module struct{}

// RegisterServices registers all pricefeed services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register PriceProvider (Binance) - private dependency
	di.RegisterToken(c, feedDI.PriceProvider, func(sr di.ServiceRegistry) app.PriceProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("tokenRegistry").(*token.Registry)

		providerCfg := binance.ProviderConfig{
			WebSocketURL:   cfg.PriceFeed.WebSocketURL,
			HTTPURL:        cfg.PriceFeed.HTTPURL,
			Symbols:        app.TrackedSymbols(registry.ListSupported(cfg.Ethereum.ChainID)),
			EnableFallback: cfg.PriceFeed.EnableFallback,
		}

		provider, err := binance.NewProvider(providerCfg, log)
		if err != nil {
			panic("failed to create binance provider: " + err.Error())
		}
		return provider
	})

	// Register Service (public - exposed to other modules)
	di.RegisterToken(c, feedDI.PriceFeedService, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		serviceCfg := app.ServiceConfig{StaleAfter: cfg.PriceFeed.StaleAfter}
		return app.NewService(feedDI.GetPriceProvider(sr), serviceCfg, log)
	})

	return nil
}

// Startup connects the feed. A failed initial connection degrades to a
// background retry instead of blocking startup; quotes then run with unknown
// gas cost until it recovers.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := feedDI.GetPriceFeedService(mono.Services())

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := svc.Start(connectCtx); err != nil {
		log.Warn(ctx, "price feed connection failed, will retry in background", "error", err)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
					if err := svc.Start(ctx); err != nil {
						log.Warn(ctx, "price feed retry failed", "error", err)
					} else {
						log.Info(ctx, "price feed connected successfully")
						return
					}
				}
			}
		}()
	}

	log.Info(ctx, "pricefeed module started")
	return nil
}
