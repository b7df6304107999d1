package app

import (
	"context"
	"strings"
	"time"

	"github.com/mgrau/dexquote/business/pricefeed/domain"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/observable"
	"github.com/mgrau/dexquote/internal/token"
)

// quoteCurrency is the stable leg every tracked symbol is priced against.
const quoteCurrency = "USDT"

// stablecoins pinned to 1 USD without consulting the exchange. Good enough
// for gas pricing and display; this feed is not a risk engine.
var stablecoins = map[string]bool{
	"USDT": true,
	"USDC": true,
	"DAI":  true,
	"BUSD": true,
}

// symbolAliases maps token symbols to the exchange symbol actually traded.
var symbolAliases = map[string]string{
	"WETH": "ETH",
	"WBTC": "BTC",
}

// ServiceConfig holds pricefeed settings.
type ServiceConfig struct {
	// StaleAfter is how old a point may be before USD conversions refuse it.
	StaleAfter time.Duration
}

// DefaultServiceConfig returns the standard pricefeed settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{StaleAfter: 30 * time.Second}
}

// Service exposes USD reference prices to the rest of the system. Updates
// stream in from the provider; reads are lock-free snapshots from it.
type Service struct {
	provider PriceProvider
	config   ServiceConfig
	logger   logger.LoggerInterface
	updates  *observable.Observable[domain.PricePoint]
	now      func() time.Time
}

// NewService creates the pricefeed service over a provider.
func NewService(provider PriceProvider, cfg ServiceConfig, log logger.LoggerInterface) *Service {
	s := &Service{
		provider: provider,
		config:   cfg,
		logger:   log,
		updates:  observable.New[domain.PricePoint](),
		now:      time.Now,
	}
	provider.OnUpdate(func(p domain.PricePoint) {
		s.updates.Publish(p)
	})
	return s
}

// Start connects the underlying stream.
func (s *Service) Start(ctx context.Context) error {
	return s.provider.Connect(ctx)
}

// Stop closes the underlying stream.
func (s *Service) Stop() error {
	return s.provider.Close()
}

// Subscribe delivers every price update to fn.
func (s *Service) Subscribe(fn func(domain.PricePoint)) observable.Unsubscribe {
	return s.updates.Subscribe(fn)
}

// USDPrice returns the current USD price of a token. Stablecoins are pinned
// to 1; everything else resolves through the tracked exchange symbols.
// ok=false when the token is untracked or the feed has gone stale.
func (s *Service) USDPrice(t *token.Token) (float64, bool) {
	if t == nil {
		return 0, false
	}
	sym := strings.ToUpper(t.Symbol())
	if stablecoins[sym] {
		return 1.0, true
	}
	if alias, ok := symbolAliases[sym]; ok {
		sym = alias
	}
	return s.usdBySymbol(sym)
}

// NativeUSD returns the USD price of the chain's native coin.
func (s *Service) NativeUSD() (float64, bool) {
	return s.usdBySymbol("ETH")
}

// Healthy reports whether the feed has delivered a fresh native price.
func (s *Service) Healthy() bool {
	_, ok := s.NativeUSD()
	return ok
}

func (s *Service) usdBySymbol(sym string) (float64, bool) {
	point, ok := s.provider.Latest(sym + quoteCurrency)
	if !ok {
		return 0, false
	}
	if point.IsStale(s.config.StaleAfter, s.now()) {
		return 0, false
	}
	mid := point.MidFloat()
	if mid <= 0 {
		return 0, false
	}
	return mid, true
}

// TrackedSymbols returns the exchange symbols a provider must stream to
// serve the given tokens.
func TrackedSymbols(tokens []*token.Token) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, t := range tokens {
		sym := strings.ToUpper(t.Symbol())
		if stablecoins[sym] {
			continue
		}
		if alias, ok := symbolAliases[sym]; ok {
			sym = alias
		}
		exchangeSym := sym + quoteCurrency
		if !seen[exchangeSym] {
			seen[exchangeSym] = true
			symbols = append(symbols, exchangeSym)
		}
	}
	return symbols
}
