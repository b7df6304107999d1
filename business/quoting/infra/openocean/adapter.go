// Package openocean implements the SourceAdapter interface on top of the
// OpenOcean aggregation API. OpenOcean routes through many DEXes and returns
// a nested routing plan, which is flattened into the canonical hop list.
package openocean

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrau/dexquote/business/quoting/app"
	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/circuitbreaker"
	"github.com/mgrau/dexquote/internal/config"
	"github.com/mgrau/dexquote/internal/httpclient"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/ratelimit"
	"github.com/mgrau/dexquote/internal/token"
)

const (
	tracerName = "openocean"

	// SourceName is the stable identifier used in rankings and metrics.
	SourceName = "openocean"

	protocolName = "OpenOcean"

	// quoteTTL bounds how long an OpenOcean quote is considered executable.
	quoteTTL = 30 * time.Second
)

// Ensure Adapter implements SourceAdapter.
var _ app.SourceAdapter = (*Adapter)(nil)

// NativeUSDFunc returns the chain's native coin price in USD, used to price
// gas. ok=false when no feed is available.
type NativeUSDFunc func() (float64, bool)

// Adapter fetches swap quotes from the OpenOcean quote API.
type Adapter struct {
	http         httpclient.Client
	limiter      *ratelimit.Limiter
	cb           *circuitbreaker.CircuitBreaker[*quoteData]
	timeout      time.Duration
	chainSlug    string
	gasPriceGwei float64
	registry     *token.Registry
	nativeUSD    NativeUSDFunc
	logger       logger.LoggerInterface
	tracer       trace.Tracer
}

// NewAdapter creates an OpenOcean source adapter. The registry resolves
// intermediate route tokens; unknown ones get a synthetic placeholder.
func NewAdapter(cfg config.OpenOceanConfig, registry *token.Registry, nativeUSD NativeUSDFunc, log logger.LoggerInterface) (*Adapter, error) {
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(SourceName),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	return &Adapter{
		http:         client,
		limiter:      ratelimit.New(cfg.RequestsPerMinute),
		cb:           circuitbreaker.New[*quoteData](circuitbreaker.DefaultConfig("openocean-api")),
		timeout:      cfg.Timeout,
		chainSlug:    cfg.ChainSlug,
		gasPriceGwei: cfg.GasPriceGwei,
		registry:     registry,
		nativeUSD:    nativeUSD,
		logger:       log,
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// Name implements SourceAdapter.
func (a *Adapter) Name() string {
	return SourceName
}

// FetchQuote implements SourceAdapter.
func (a *Adapter) FetchQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, "openocean.fetch_quote",
		trace.WithAttributes(
			attribute.String("pair", req.PairKey()),
			attribute.String("amount_in", req.AmountIn.String()),
		),
	)
	defer span.End()

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, apperror.New(apperror.CodeRateLimitExceeded,
			apperror.WithCause(err),
			apperror.WithContext("rate limit wait aborted"))
	}

	data, err := a.cb.Execute(func() (*quoteData, error) {
		return a.requestQuote(ctx, req)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	quote, err := a.normalize(data, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("amount_out", quote.AmountOut.String()),
		attribute.Int("hops", len(quote.Route)),
	)
	span.SetStatus(codes.Ok, "quote received")

	a.logger.Debug(ctx, "openocean quote",
		"pair", req.PairKey(),
		"amount_in", req.AmountIn.String(),
		"amount_out", quote.AmountOut.String(),
		"route", quote.RouteSummary(),
	)

	return quote, nil
}

func (a *Adapter) requestQuote(ctx context.Context, req domain.QuoteRequest) (*quoteData, error) {
	var envelope quoteEnvelope
	resp, err := a.http.NewRequest().
		SetQueryParams(map[string]string{
			"inTokenAddress":  apiAddress(req.TokenIn),
			"outTokenAddress": apiAddress(req.TokenOut),
			"amount":          req.AmountIn.String(),
			"gasPrice":        strconv.FormatFloat(a.gasPriceGwei, 'f', -1, 64),
			"slippage":        strconv.FormatFloat(req.SlippagePercent, 'f', -1, 64),
		}).
		SetResult(&envelope).
		Get(ctx, fmt.Sprintf("/v3/%s/quote", a.chainSlug))
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperror.New(apperror.CodeSourceTimeout,
				apperror.WithCause(err))
		}
		return nil, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithCause(err))
	}
	if resp.IsError() {
		return nil, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithContext(fmt.Sprintf("openocean returned status %d", resp.StatusCode)))
	}
	if envelope.Code != codeOK {
		return nil, apperror.New(apperror.CodeInvalidResponse,
			apperror.WithContext(fmt.Sprintf("openocean code %d: %s", envelope.Code, envelope.Error)))
	}
	return &envelope.Data, nil
}

// normalize converts the wire payload into a validated domain quote.
func (a *Adapter) normalize(data *quoteData, req domain.QuoteRequest) (*domain.Quote, error) {
	outRaw, ok := new(big.Int).SetString(data.OutAmount, 10)
	if !ok {
		return nil, normErr(fmt.Sprintf("bad outAmount %q", data.OutAmount))
	}
	if outRaw.Sign() == 0 {
		return nil, apperror.New(apperror.CodeNoLiquidity,
			apperror.WithContext("openocean found no route for pair"))
	}
	amountOut := req.TokenOut.FromBaseUnits(outRaw)

	impact, err := parseImpact(data.PriceImpact)
	if err != nil {
		return nil, err
	}

	var gasEstimate uint64
	if data.EstimatedGas != "" {
		g, err := strconv.ParseUint(data.EstimatedGas.String(), 10, 64)
		if err != nil {
			return nil, normErr(fmt.Sprintf("bad estimatedGas %q", data.EstimatedGas))
		}
		gasEstimate = g
	}

	route, err := a.flattenRoute(data.Path, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	quote := &domain.Quote{
		ID:                 domain.NewQuoteID(SourceName),
		SourceName:         SourceName,
		TokenIn:            req.TokenIn,
		TokenOut:           req.TokenOut,
		AmountIn:           req.AmountIn,
		AmountOut:          amountOut,
		AmountOutMinimum:   domain.ApplySlippage(amountOut, req.SlippagePercent),
		PriceImpactPercent: impact,
		Route:              route,
		GasEstimate:        gasEstimate,
		GasCostUSD:         a.gasCostUSD(gasEstimate),
		ValidUntil:         now.Add(quoteTTL),
		FetchedAt:          now,
	}

	if err := quote.Validate(); err != nil {
		return nil, err
	}
	return quote, nil
}

// flattenRoute converts the nested routing plan into the canonical hop list.
// One route is emitted step by step with per-dex split legs. Several
// top-level routes cannot be represented hop-exact in a flat list, so they
// collapse into a single split step between the requested tokens.
func (a *Adapter) flattenRoute(path routePath, req domain.QuoteRequest) ([]domain.Hop, error) {
	routes := path.Routes
	if len(routes) == 0 {
		return []domain.Hop{{
			TokenIn:        req.TokenIn,
			TokenOut:       req.TokenOut,
			PoolIdentifier: protocolName,
			ProtocolName:   protocolName,
		}}, nil
	}

	if len(routes) > 1 {
		hops := make([]domain.Hop, len(routes))
		for i, r := range routes {
			hops[i] = domain.Hop{
				TokenIn:        req.TokenIn,
				TokenOut:       req.TokenOut,
				PoolIdentifier: routeLabel(r),
				ProtocolName:   routeLabel(r),
				SplitPercent:   r.Percentage,
			}
		}
		return hops, nil
	}

	var hops []domain.Hop
	steps := routes[0].SubRoutes
	for i, st := range steps {
		// Endpoints of the whole route must be the requested tokens; the
		// path's intermediate addresses are resolved or synthesized.
		stepIn := a.resolveToken(st.From, req.TokenIn.ChainID())
		stepOut := a.resolveToken(st.To, req.TokenIn.ChainID())
		if i == 0 {
			stepIn = req.TokenIn
		}
		if i == len(steps)-1 {
			stepOut = req.TokenOut
		}
		if stepIn == nil || stepOut == nil {
			return nil, normErr(fmt.Sprintf("unresolvable route step %s -> %s", st.From, st.To))
		}

		if len(st.Dexes) == 0 {
			hops = append(hops, domain.Hop{
				TokenIn:        stepIn,
				TokenOut:       stepOut,
				PoolIdentifier: protocolName,
				ProtocolName:   protocolName,
			})
			continue
		}
		for _, d := range st.Dexes {
			hop := domain.Hop{
				TokenIn:        stepIn,
				TokenOut:       stepOut,
				PoolIdentifier: d.ID,
				ProtocolName:   d.Dex,
			}
			if len(st.Dexes) > 1 {
				hop.SplitPercent = d.Percentage
			}
			hops = append(hops, hop)
		}
	}
	return hops, nil
}

// resolveToken finds a route token in the registry, or synthesizes an 18
// decimal placeholder so routing metadata survives for display. Returns nil
// for unparseable addresses.
func (a *Adapter) resolveToken(address string, chainID uint64) *token.Token {
	if t, err := a.registry.Resolve(chainID, address); err == nil {
		return t
	}
	id, err := token.ParseID(chainID, address)
	if err != nil {
		return nil
	}
	symbol := strings.ToUpper(address)
	if len(symbol) > 8 {
		symbol = symbol[:8]
	}
	return token.New(id, symbol, 18)
}

func routeLabel(r route) string {
	for _, st := range r.SubRoutes {
		for _, d := range st.Dexes {
			return d.Dex
		}
	}
	return protocolName
}

// parseImpact strips the API's trailing percent sign, e.g. "0.09%" -> 0.09.
func parseImpact(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, normErr(fmt.Sprintf("bad price_impact %q", s))
	}
	return v, nil
}

func (a *Adapter) gasCostUSD(gasEstimate uint64) float64 {
	if a.nativeUSD == nil || gasEstimate == 0 || a.gasPriceGwei <= 0 {
		return 0
	}
	ethUSD, ok := a.nativeUSD()
	if !ok || ethUSD <= 0 {
		return 0
	}
	return float64(gasEstimate) * a.gasPriceGwei / 1e9 * ethUSD
}

// apiAddress renders the token the way the OpenOcean API expects.
func apiAddress(t *token.Token) string {
	if t.IsNative() {
		return token.NativeAddress
	}
	return t.Address().Hex()
}

func normErr(detail string) error {
	return apperror.New(apperror.CodeNormalizationError,
		apperror.WithContext(SourceName+": "+detail))
}
