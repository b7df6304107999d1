// Package quoting implements the swap quote aggregation bounded context:
// fan-out to the configured liquidity sources, normalization, scoring and
// the cache-fronted query service.
package quoting

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	feedDI "github.com/mgrau/dexquote/business/pricefeed/di"
	"github.com/mgrau/dexquote/business/quoting/app"
	quoteDI "github.com/mgrau/dexquote/business/quoting/di"
	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/business/quoting/infra/openocean"
	"github.com/mgrau/dexquote/business/quoting/infra/uniswapv3"
	"github.com/mgrau/dexquote/business/quoting/infra/zeroex"
	"github.com/mgrau/dexquote/internal/config"
	"github.com/mgrau/dexquote/internal/di"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/monolith"
	"github.com/mgrau/dexquote/internal/token"
)

// Module implements the quoting bounded context.
type Module struct{}

// RegisterServices registers all quoting services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register the enabled source adapters - private dependency
	di.RegisterToken(c, quoteDI.SourceAdapters, func(sr di.ServiceRegistry) []app.SourceAdapter {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("tokenRegistry").(*token.Registry)
		feed := feedDI.GetPriceFeedService(sr)

		var adapters []app.SourceAdapter

		if cfg.UniswapV3.Enabled {
			client := sr.Get("ethClient").(*ethclient.Client)
			a, err := uniswapv3.NewAdapter(client, cfg.UniswapV3, feed.NativeUSD, log)
			if err != nil {
				panic("failed to create uniswap v3 adapter: " + err.Error())
			}
			adapters = append(adapters, a)
		}

		if cfg.ZeroEx.Enabled {
			a, err := zeroex.NewAdapter(cfg.ZeroEx, feed.NativeUSD, log)
			if err != nil {
				panic("failed to create 0x adapter: " + err.Error())
			}
			adapters = append(adapters, a)
		}

		if cfg.OpenOcean.Enabled {
			a, err := openocean.NewAdapter(cfg.OpenOcean, registry, feed.NativeUSD, log)
			if err != nil {
				panic("failed to create openocean adapter: " + err.Error())
			}
			adapters = append(adapters, a)
		}

		return adapters
	})

	// Register Collector - private dependency
	di.RegisterToken(c, quoteDI.Collector, func(sr di.ServiceRegistry) *app.Collector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		collector, err := app.NewCollector(
			quoteDI.GetSourceAdapters(sr),
			app.CollectorConfig{OverallTimeout: cfg.Aggregator.OverallTimeout},
			log,
		)
		if err != nil {
			panic("failed to create collector: " + err.Error())
		}
		return collector
	})

	// Register Ranker - private dependency
	di.RegisterToken(c, quoteDI.Ranker, func(sr di.ServiceRegistry) *app.Ranker {
		cfg := sr.Get("config").(*config.Config)
		feed := feedDI.GetPriceFeedService(sr)

		rankerCfg := app.RankerConfig{
			Score: domain.ScoreConfig{
				ImpactThresholdPercent: cfg.Aggregator.ImpactThresholdPercent,
				ExcessImpactFactor:     cfg.Aggregator.ExcessImpactFactor,
			},
			ResultTTL: cfg.Aggregator.ResultTTL,
		}
		return app.NewRanker(rankerCfg, feed.USDPrice)
	})

	// Register QuoteCache - private dependency
	di.RegisterToken(c, quoteDI.QuoteCache, func(sr di.ServiceRegistry) *app.QuoteCache {
		cfg := sr.Get("config").(*config.Config)

		return app.NewQuoteCache(app.QuoteCacheConfig{
			TTL:           cfg.Aggregator.CacheTTL,
			SweepInterval: cfg.Aggregator.CacheSweepInterval,
		})
	})

	// Register QuoteService (public - exposed to other modules)
	di.RegisterToken(c, quoteDI.QuoteService, func(sr di.ServiceRegistry) *app.QuoteService {
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewQuoteService(
			quoteDI.GetCollector(sr),
			quoteDI.GetRanker(sr),
			quoteDI.GetQuoteCache(sr),
			log,
		)
	})

	// Register SessionFactory (public). Each consumer owns its session, so the
	// factory hands out fresh instances instead of a singleton.
	di.RegisterToken(c, quoteDI.SessionFactory, func(sr di.ServiceRegistry) func() *app.Session {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		svc := quoteDI.GetQuoteService(sr)

		sessionCfg := app.SessionConfig{
			Debounce:   cfg.Aggregator.Debounce,
			StaleAfter: cfg.Aggregator.StaleAfter,
		}
		return func() *app.Session {
			return app.NewSession(svc, sessionCfg, log)
		}
	})

	return nil
}

// Startup materializes the service graph and logs the active sources.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := quoteDI.GetQuoteService(mono.Services())

	log.Info(ctx, "quoting module started", "sources", svc.Sources())
	return nil
}
