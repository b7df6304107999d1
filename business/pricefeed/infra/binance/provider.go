package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrau/dexquote/business/pricefeed/app"
	"github.com/mgrau/dexquote/business/pricefeed/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/wsconn"
)

const (
	tracerName = "pricefeed.binance"
	meterName  = "pricefeed.binance"

	// Binance WebSocket endpoints
	BaseWSURL     = "wss://stream.binance.com:9443"
	DataStreamURL = "wss://data-stream.binance.vision"
)

// Ensure Provider implements PriceProvider.
var _ app.PriceProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the Binance provider.
type ProviderConfig struct {
	WebSocketURL   string   // WebSocket base URL (empty = default)
	HTTPURL        string   // REST API base URL (empty = default)
	Symbols        []string // Exchange symbols, e.g. "ETHUSDT"
	EnableFallback bool     // Snapshot over REST before the stream warms up
}

// DefaultProviderConfig returns sensible defaults.
func DefaultProviderConfig(symbols []string) ProviderConfig {
	return ProviderConfig{
		Symbols:        symbols,
		EnableFallback: true,
	}
}

// providerMetrics holds OTEL metric instruments.
type providerMetrics struct {
	updatesReceived metric.Int64Counter
	parseErrors     metric.Int64Counter
}

// Provider streams best bid/ask for the configured symbols over a combined
// bookTicker stream, with an optional REST snapshot so prices are available
// before the first tick arrives.
type Provider struct {
	config ProviderConfig
	logger logger.LoggerInterface

	conn   *wsconn.Client
	connMu sync.RWMutex

	latest   map[string]domain.PricePoint
	latestMu sync.RWMutex

	onUpdate   func(domain.PricePoint)
	handlersMu sync.RWMutex

	httpClient *HTTPClient

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates a new Binance price provider.
func NewProvider(cfg ProviderConfig, log logger.LoggerInterface) (*Provider, error) {
	if len(cfg.Symbols) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no symbols configured"))
	}

	p := &Provider{
		config: cfg,
		logger: log,
		latest: make(map[string]domain.PricePoint, len(cfg.Symbols)),
		tracer: otel.Tracer(tracerName),
	}

	if cfg.EnableFallback {
		httpClient, err := NewHTTPClient(HTTPClientConfig{BaseURL: cfg.HTTPURL}, log)
		if err != nil {
			log.Warn(context.Background(), "failed to create HTTP fallback client", "error", err)
		} else {
			p.httpClient = httpClient
		}
	}

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return p, nil
}

func (p *Provider) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &providerMetrics{}

	p.metrics.updatesReceived, err = meter.Int64Counter(
		"pricefeed_updates_total",
		metric.WithDescription("Total book ticker updates received"),
	)
	if err != nil {
		return err
	}

	p.metrics.parseErrors, err = meter.Int64Counter(
		"pricefeed_parse_errors_total",
		metric.WithDescription("Message parse errors"),
	)
	return err
}

// OnUpdate implements PriceProvider.
func (p *Provider) OnUpdate(handler func(domain.PricePoint)) {
	p.handlersMu.Lock()
	p.onUpdate = handler
	p.handlersMu.Unlock()
}

// Connect implements PriceProvider: seed via REST when enabled, then attach
// to the combined bookTicker stream.
func (p *Provider) Connect(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pricefeed.binance.connect",
		trace.WithAttributes(attribute.StringSlice("symbols", p.config.Symbols)),
	)
	defer span.End()

	if p.httpClient != nil {
		p.seedFromSnapshot(ctx)
	}

	wsURL, err := p.buildStreamURL()
	if err != nil {
		return err
	}

	wsCfg := wsconn.DefaultConfig(wsURL, "binance")
	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketConnectError,
			apperror.WithCause(err),
			apperror.WithContext("failed to create wsconn"))
	}

	conn.OnMessage(p.handleMessage)
	conn.OnStateChange(func(state wsconn.State, cause error) {
		if cause != nil {
			p.logger.Warn(context.Background(), "pricefeed connection state change",
				"state", string(state), "error", cause)
		}
	})

	if err := conn.ConnectWithRetry(ctx); err != nil {
		return apperror.New(apperror.CodeWebSocketConnectError,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect to binance"))
	}

	p.connMu.Lock()
	p.conn = conn
	p.connMu.Unlock()

	p.logger.Info(ctx, "pricefeed connected",
		"url", wsURL,
		"symbols", p.config.Symbols)

	return nil
}

// Close implements PriceProvider.
func (p *Provider) Close() error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Latest implements PriceProvider.
func (p *Provider) Latest(symbol string) (domain.PricePoint, bool) {
	p.latestMu.RLock()
	defer p.latestMu.RUnlock()
	point, ok := p.latest[symbol]
	return point, ok
}

// buildStreamURL constructs the combined streams WebSocket URL. Encoding the
// subscriptions into the URL means a reconnect resubscribes for free.
func (p *Provider) buildStreamURL() (string, error) {
	base := p.config.WebSocketURL
	if base == "" {
		base = BaseWSURL
	}

	streams := make([]string, 0, len(p.config.Symbols))
	for _, sym := range p.config.Symbols {
		streams = append(streams, BookTickerStream(sym))
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("bad websocket URL"))
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// seedFromSnapshot primes the price map over REST so USD conversions work
// before the first stream tick. Failures are logged, never fatal.
func (p *Provider) seedFromSnapshot(ctx context.Context) {
	for _, sym := range p.config.Symbols {
		snapshot, err := p.httpClient.GetBookTicker(ctx, sym)
		if err != nil {
			p.logger.Debug(ctx, "snapshot seed failed", "symbol", sym, "error", err)
			continue
		}
		p.storeUpdate(&BookTickerEvent{
			Symbol:   snapshot.Symbol,
			BidPrice: snapshot.BidPrice,
			AskPrice: snapshot.AskPrice,
		})
	}
}

// handleMessage processes incoming WebSocket messages.
func (p *Provider) handleMessage(ctx context.Context, data []byte) {
	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// Might be a subscription response
		var resp WSResponse
		if json.Unmarshal(data, &resp) == nil {
			return
		}
		p.metrics.parseErrors.Add(ctx, 1)
		p.logger.Debug(ctx, "failed to parse message", "error", err)
		return
	}

	if !strings.HasSuffix(event.Stream, "@bookTicker") {
		return
	}

	var ticker BookTickerEvent
	if err := json.Unmarshal(event.Data, &ticker); err != nil {
		p.metrics.parseErrors.Add(ctx, 1)
		return
	}

	p.metrics.updatesReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("symbol", ticker.Symbol)))
	p.storeUpdate(&ticker)
}

func (p *Provider) storeUpdate(event *BookTickerEvent) {
	bid, err := event.ParseBidPrice()
	if err != nil {
		p.logger.Debug(context.Background(), "failed to parse bid price",
			"symbol", event.Symbol, "error", err)
		return
	}
	ask, err := event.ParseAskPrice()
	if err != nil {
		p.logger.Debug(context.Background(), "failed to parse ask price",
			"symbol", event.Symbol, "error", err)
		return
	}

	point := domain.PricePoint{
		Symbol:    event.Symbol,
		Bid:       bid,
		Ask:       ask,
		UpdatedAt: time.Now(),
	}

	p.latestMu.Lock()
	p.latest[event.Symbol] = point
	p.latestMu.Unlock()

	p.handlersMu.RLock()
	handler := p.onUpdate
	p.handlersMu.RUnlock()
	if handler != nil {
		handler(point)
	}
}
