// Package uniswapv3 implements the SourceAdapter interface by quoting the
// Uniswap V3 QuoterV2 contract directly over JSON-RPC.
package uniswapv3

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrau/dexquote/business/quoting/app"
	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/circuitbreaker"
	"github.com/mgrau/dexquote/internal/config"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/token"
)

const (
	tracerName = "uniswapv3"
	meterName  = "uniswapv3"

	// SourceName is the stable identifier used in rankings and metrics.
	SourceName = "uniswap_v3"

	protocolName = "UniswapV3"

	// quoteTTL bounds how long a QuoterV2 answer is considered executable.
	quoteTTL = 15 * time.Second

	// impactProbeDivisor sizes the baseline probe for price impact: a trade
	// this many times smaller approximates the marginal price.
	impactProbeDivisor = 1000
)

// Ensure Adapter implements SourceAdapter.
var _ app.SourceAdapter = (*Adapter)(nil)

// NativeUSDFunc returns the chain's native coin price in USD, used to price
// gas. ok=false when no feed is available.
type NativeUSDFunc func() (float64, bool)

// adapterMetrics holds OTEL metric instruments.
type adapterMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteLatency metric.Float64Histogram
	quoteErrors  metric.Int64Counter
}

// Adapter quotes swaps against Uniswap V3 via QuoterV2 eth_call. Each request
// probes every configured fee tier and keeps the best output.
type Adapter struct {
	client    *ethclient.Client
	quoter    common.Address
	quoterABI abi.ABI
	feeTiers  []int
	timeout   time.Duration

	nativeUSD NativeUSDFunc
	logger    logger.LoggerInterface
	cb        *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *adapterMetrics
}

// NewAdapter creates a Uniswap V3 source adapter. nativeUSD may be nil; gas
// cost then stays unknown (zero) on every quote.
func NewAdapter(client *ethclient.Client, cfg config.UniswapV3Config, nativeUSD NativeUSDFunc, log logger.LoggerInterface) (*Adapter, error) {
	parsedABI, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}

	a := &Adapter{
		client:    client,
		quoter:    cfg.QuoterAddressHex(),
		quoterABI: parsedABI,
		feeTiers:  []int{FeeTier005, FeeTier030, FeeTier100, FeeTier001},
		timeout:   cfg.Timeout,
		nativeUSD: nativeUSD,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("uniswapv3-quoter")
	a.cb = circuitbreaker.New[[]byte](cbCfg)

	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return a, nil
}

func (a *Adapter) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &adapterMetrics{}

	a.metrics.quotesTotal, err = meter.Int64Counter(
		"uniswapv3_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	a.metrics.quoteLatency, err = meter.Float64Histogram(
		"uniswapv3_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	a.metrics.quoteErrors, err = meter.Int64Counter(
		"uniswapv3_quote_errors_total",
		metric.WithDescription("Total quote errors"),
	)
	return err
}

// Name implements SourceAdapter.
func (a *Adapter) Name() string {
	return SourceName
}

// FetchQuote implements SourceAdapter. Native ETH is quoted through WETH,
// matching how the router wraps on execution.
func (a *Adapter) FetchQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, "uniswapv3.fetch_quote",
		trace.WithAttributes(
			attribute.String("pair", req.PairKey()),
			attribute.String("amount_in", req.AmountIn.String()),
		),
	)
	defer span.End()

	start := time.Now()
	a.metrics.quotesTotal.Add(ctx, 1)

	amountIn, err := req.TokenIn.ToBaseUnits(req.AmountIn)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err))
	}

	addrIn := a.onchainAddress(req.TokenIn)
	addrOut := a.onchainAddress(req.TokenOut)

	best, bestTier, err := a.bestAcrossFeeTiers(ctx, addrIn, addrOut, amountIn, span)

	a.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		a.metrics.quoteErrors.Add(ctx, 1)
		span.SetStatus(codes.Error, "no valid quote")
		return nil, err
	}

	amountOut := req.TokenOut.FromBaseUnits(best.AmountOut)
	impact := a.priceImpact(ctx, addrIn, addrOut, amountIn, best, bestTier)

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
		Route: []domain.Hop{{
			TokenIn:        req.TokenIn,
			TokenOut:       req.TokenOut,
			PoolIdentifier: poolIdentifier(addrIn, addrOut, bestTier),
			ProtocolName:   protocolName,
			FeeBasisPoints: uint32(bestTier / 100),
		}},
		GasEstimate: best.GasEstimate.Uint64(),
		GasCostUSD:  a.gasCostUSD(ctx, best.GasEstimate),
		ValidUntil:  now.Add(quoteTTL),
		FetchedAt:   now,
	}

	if err := quote.Validate(); err != nil {
		a.metrics.quoteErrors.Add(ctx, 1)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("amount_out", amountOut.String()),
		attribute.Int("fee_tier", bestTier),
		attribute.Float64("price_impact_pct", impact),
	)
	span.SetStatus(codes.Ok, "quote received")

	a.logger.Debug(ctx, "uniswap quote",
		"pair", req.PairKey(),
		"amount_in", req.AmountIn.String(),
		"amount_out", amountOut.String(),
		"fee_tier", bestTier,
	)

	return quote, nil
}

// bestAcrossFeeTiers probes every fee tier and keeps the highest output. A
// tier without a pool reverts; that is expected and only logged to the span.
func (a *Adapter) bestAcrossFeeTiers(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, span trace.Span) (*QuoteResult, int, error) {
	var best *QuoteResult
	var bestTier int

	for _, feeTier := range a.feeTiers {
		quote, err := a.quoteFeeTier(ctx, tokenIn, tokenOut, amountIn, feeTier)
		if err != nil {
			if apperror.Has(err, apperror.CodeCircuitOpen) || ctx.Err() != nil {
				return nil, 0, err
			}
			span.AddEvent("fee_tier_failed",
				trace.WithAttributes(
					attribute.Int("fee_tier", feeTier),
					attribute.String("error", err.Error()),
				),
			)
			continue
		}

		if quote.AmountOut.Sign() == 0 {
			continue
		}
		if best == nil || quote.AmountOut.Cmp(best.AmountOut) > 0 {
			best = quote
			bestTier = feeTier
		}
	}

	if best == nil {
		return nil, 0, apperror.New(apperror.CodeNoLiquidity,
			apperror.WithContext("no pool found for token pair"))
	}
	return best, bestTier, nil
}

// quoteFeeTier calls QuoterV2.quoteExactInputSingle for a specific fee tier.
func (a *Adapter) quoteFeeTier(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feeTier int) (*QuoteResult, error) {
	callData, err := a.quoterABI.Pack("quoteExactInputSingle", QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(feeTier)),
		SqrtPriceLimitX96: big.NewInt(0), // No price limit
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	result, err := a.cb.Execute(func() ([]byte, error) {
		return a.client.CallContract(ctx, ethereum.CallMsg{
			To:   &a.quoter,
			Data: callData,
		}, nil)
	})
	if err != nil {
		if apperror.Has(err, apperror.CodeCircuitOpen) {
			return nil, err
		}
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("quoter call failed for fee tier %d", feeTier)))
	}

	outputs, err := a.quoterABI.Unpack("quoteExactInputSingle", result)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidResponse,
			apperror.WithCause(err),
			apperror.WithContext("failed to decode quoter result"))
	}
	if len(outputs) < 4 {
		return nil, apperror.New(apperror.CodeInvalidResponse,
			apperror.WithContext(fmt.Sprintf("unexpected output length: %d", len(outputs))))
	}

	return &QuoteResult{
		AmountOut:               outputs[0].(*big.Int),
		SqrtPriceX96After:       outputs[1].(*big.Int),
		InitializedTicksCrossed: outputs[2].(uint32),
		GasEstimate:             outputs[3].(*big.Int),
	}, nil
}

// priceImpact estimates impact by re-quoting a much smaller probe on the
// winning tier and comparing unit prices. Best effort: any probe failure
// yields 0 (unknown) rather than failing the quote.
func (a *Adapter) priceImpact(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, trade *QuoteResult, feeTier int) float64 {
	probeIn := new(big.Int).Div(amountIn, big.NewInt(impactProbeDivisor))
	if probeIn.Sign() == 0 {
		return 0
	}

	probe, err := a.quoteFeeTier(ctx, tokenIn, tokenOut, probeIn, feeTier)
	if err != nil || probe.AmountOut.Sign() == 0 {
		return 0
	}

	// unit price = out/in; impact = 1 - tradePrice/probePrice, in percent.
	tradePrice := new(big.Float).Quo(
		new(big.Float).SetInt(trade.AmountOut),
		new(big.Float).SetInt(amountIn),
	)
	probePrice := new(big.Float).Quo(
		new(big.Float).SetInt(probe.AmountOut),
		new(big.Float).SetInt(probeIn),
	)
	if probePrice.Sign() == 0 {
		return 0
	}

	ratio, _ := new(big.Float).Quo(tradePrice, probePrice).Float64()
	return (1 - ratio) * 100
}

// gasCostUSD prices the gas estimate via eth_gasPrice and the native coin
// feed. Returns 0 (unknown) when either is unavailable.
func (a *Adapter) gasCostUSD(ctx context.Context, gasEstimate *big.Int) float64 {
	if a.nativeUSD == nil {
		return 0
	}
	ethUSD, ok := a.nativeUSD()
	if !ok || ethUSD <= 0 {
		return 0
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		a.logger.Debug(ctx, "gas price lookup failed", "error", err)
		return 0
	}

	costWei := new(big.Int).Mul(gasEstimate, gasPrice)
	costETH, _ := new(big.Float).Quo(
		new(big.Float).SetInt(costWei),
		big.NewFloat(1e18),
	).Float64()
	return costETH * ethUSD
}

// onchainAddress maps native ETH to WETH; every other token uses its own
// contract address.
func (a *Adapter) onchainAddress(t *token.Token) common.Address {
	if t.IsNative() {
		return token.AddrWETHEthereum
	}
	return t.Address()
}

func poolIdentifier(tokenIn, tokenOut common.Address, feeTier int) string {
	return fmt.Sprintf("%s/%s@%d",
		strings.ToLower(tokenIn.Hex()), strings.ToLower(tokenOut.Hex()), feeTier)
}
