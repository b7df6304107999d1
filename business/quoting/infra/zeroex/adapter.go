// Package zeroex implements the SourceAdapter interface on top of the 0x
// Swap API. 0x is itself an aggregator, so one quote may fill across several
// liquidity sources; those become split legs of a single-step route.
package zeroex

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
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
	tracerName = "zeroex"

	// SourceName is the stable identifier used in rankings and metrics.
	SourceName = "zeroex"

	// quoteTTL bounds how long a 0x quote is considered executable.
	quoteTTL = 30 * time.Second
)

// Ensure Adapter implements SourceAdapter.
var _ app.SourceAdapter = (*Adapter)(nil)

// NativeUSDFunc returns the chain's native coin price in USD, used to price
// gas. ok=false when no feed is available.
type NativeUSDFunc func() (float64, bool)

// Adapter fetches swap quotes from the 0x Swap API.
type Adapter struct {
	http      httpclient.Client
	limiter   *ratelimit.Limiter
	cb        *circuitbreaker.CircuitBreaker[*quoteResponse]
	timeout   time.Duration
	nativeUSD NativeUSDFunc
	logger    logger.LoggerInterface
	tracer    trace.Tracer
}

// NewAdapter creates a 0x source adapter.
func NewAdapter(cfg config.ZeroExConfig, nativeUSD NativeUSDFunc, log logger.LoggerInterface) (*Adapter, error) {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["0x-api-key"] = cfg.APIKey
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(SourceName),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithHeaders(headers),
		httpclient.WithRequestTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	return &Adapter{
		http:      client,
		limiter:   ratelimit.New(cfg.RequestsPerMinute),
		cb:        circuitbreaker.New[*quoteResponse](circuitbreaker.DefaultConfig("zeroex-api")),
		timeout:   cfg.Timeout,
		nativeUSD: nativeUSD,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
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

	ctx, span := a.tracer.Start(ctx, "zeroex.fetch_quote",
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

	sellAmount, err := req.TokenIn.ToBaseUnits(req.AmountIn)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err))
	}

	dto, err := a.cb.Execute(func() (*quoteResponse, error) {
		return a.requestQuote(ctx, req, sellAmount)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	quote, err := normalize(dto, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	quote.GasCostUSD = a.gasCostUSD(dto)

	span.SetAttributes(
		attribute.String("amount_out", quote.AmountOut.String()),
		attribute.Int("sources", len(quote.Route)),
	)
	span.SetStatus(codes.Ok, "quote received")

	a.logger.Debug(ctx, "zeroex quote",
		"pair", req.PairKey(),
		"amount_in", req.AmountIn.String(),
		"amount_out", quote.AmountOut.String(),
		"route", quote.RouteSummary(),
	)

	return quote, nil
}

func (a *Adapter) requestQuote(ctx context.Context, req domain.QuoteRequest, sellAmount *big.Int) (*quoteResponse, error) {
	var dto quoteResponse
	resp, err := a.http.NewRequestWithOptions(
		httpclient.WithResponseErrorHandler(mapAPIError),
	).
		SetQueryParams(map[string]string{
			"sellToken":          apiAddress(req.TokenIn),
			"buyToken":           apiAddress(req.TokenOut),
			"sellAmount":         sellAmount.String(),
			"slippagePercentage": strconv.FormatFloat(req.SlippagePercent/100, 'f', -1, 64),
		}).
		SetResult(&dto).
		Get(ctx, "/swap/v1/quote")
	if err != nil {
		if apperror.IsAppError(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, apperror.New(apperror.CodeSourceTimeout,
				apperror.WithCause(err))
		}
		return nil, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithCause(err))
	}
	if resp.Result() == nil {
		return nil, apperror.New(apperror.CodeInvalidResponse,
			apperror.WithContext("unparseable quote body"))
	}
	return &dto, nil
}

// mapAPIError translates 0x HTTP failures into domain error codes. A 400 with
// an INSUFFICIENT_ASSET_LIQUIDITY validation error means the pair simply has
// no route, which callers treat differently from an outage.
func mapAPIError(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return apperror.New(apperror.CodeRateLimitExceeded,
			apperror.WithContext("zeroex API throttled the request"))
	case statusCode == http.StatusBadRequest:
		for _, ve := range apiErr.ValidationErrors {
			if ve.Reason == "INSUFFICIENT_ASSET_LIQUIDITY" {
				return apperror.New(apperror.CodeNoLiquidity,
					apperror.WithContext("zeroex: insufficient asset liquidity"))
			}
		}
		return apperror.New(apperror.CodeInvalidResponse,
			apperror.WithContext(fmt.Sprintf("zeroex rejected the request: %s", apiErr.Reason)))
	default:
		return apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithContext(fmt.Sprintf("zeroex returned status %d", statusCode)))
	}
}

// normalize converts the wire DTO into a validated domain quote. Pure, so the
// tricky parsing paths are testable without a server.
func normalize(dto *quoteResponse, req domain.QuoteRequest) (*domain.Quote, error) {
	buyRaw, ok := new(big.Int).SetString(dto.BuyAmount, 10)
	if !ok {
		return nil, normErr(fmt.Sprintf("bad buyAmount %q", dto.BuyAmount))
	}
	sellRaw, ok := new(big.Int).SetString(dto.SellAmount, 10)
	if !ok {
		return nil, normErr(fmt.Sprintf("bad sellAmount %q", dto.SellAmount))
	}

	amountOut := req.TokenOut.FromBaseUnits(buyRaw)
	amountIn := req.TokenIn.FromBaseUnits(sellRaw)

	impact := 0.0
	if dto.EstimatedPriceImpact != "" {
		v, err := strconv.ParseFloat(dto.EstimatedPriceImpact, 64)
		if err != nil {
			return nil, normErr(fmt.Sprintf("bad estimatedPriceImpact %q", dto.EstimatedPriceImpact))
		}
		impact = v
	}

	route, err := routeFromSources(dto.Sources, req)
	if err != nil {
		return nil, err
	}

	var gasEstimate uint64
	if dto.EstimatedGas != "" {
		g, err := strconv.ParseUint(dto.EstimatedGas, 10, 64)
		if err != nil {
			return nil, normErr(fmt.Sprintf("bad estimatedGas %q", dto.EstimatedGas))
		}
		gasEstimate = g
	}

	now := time.Now()
	quote := &domain.Quote{
		ID:                 domain.NewQuoteID(SourceName),
		SourceName:         SourceName,
		TokenIn:            req.TokenIn,
		TokenOut:           req.TokenOut,
		AmountIn:           amountIn,
		AmountOut:          amountOut,
		AmountOutMinimum:   domain.ApplySlippage(amountOut, req.SlippagePercent),
		PriceImpactPercent: impact,
		Route:              route,
		GasEstimate:        gasEstimate,
		ValidUntil:         now.Add(quoteTTL),
		FetchedAt:          now,
	}

	if err := quote.Validate(); err != nil {
		return nil, err
	}
	return quote, nil
}

// routeFromSources turns the filled liquidity sources into route legs. A
// single active source is a plain hop; several become split legs of one step.
func routeFromSources(sources []quoteSource, req domain.QuoteRequest) ([]domain.Hop, error) {
	type active struct {
		name    string
		percent float64
	}
	var filled []active
	for _, s := range sources {
		p, err := strconv.ParseFloat(s.Proportion, 64)
		if err != nil {
			return nil, normErr(fmt.Sprintf("bad proportion %q for source %s", s.Proportion, s.Name))
		}
		if p > 0 {
			filled = append(filled, active{name: s.Name, percent: p * 100})
		}
	}
	if len(filled) == 0 {
		return nil, normErr("no liquidity source filled the quote")
	}

	hops := make([]domain.Hop, len(filled))
	for i, f := range filled {
		hops[i] = domain.Hop{
			TokenIn:        req.TokenIn,
			TokenOut:       req.TokenOut,
			PoolIdentifier: f.name,
			ProtocolName:   f.name,
		}
		if len(filled) > 1 {
			hops[i].SplitPercent = f.percent
		}
	}
	return hops, nil
}

// gasCostUSD prices the quote's gas from the response's own gas price.
func (a *Adapter) gasCostUSD(dto *quoteResponse) float64 {
	if a.nativeUSD == nil || dto.EstimatedGas == "" || dto.GasPrice == "" {
		return 0
	}
	ethUSD, ok := a.nativeUSD()
	if !ok || ethUSD <= 0 {
		return 0
	}
	gas, err1 := strconv.ParseFloat(dto.EstimatedGas, 64)
	gasPriceWei, err2 := strconv.ParseFloat(dto.GasPrice, 64)
	if err1 != nil || err2 != nil {
		return 0
	}
	return gas * gasPriceWei / 1e18 * ethUSD
}

// apiAddress renders the token the way the 0x API expects: the conventional
// 0xeee pseudo-address for native coins, the contract address otherwise.
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
