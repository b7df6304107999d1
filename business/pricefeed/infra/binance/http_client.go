package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/httpclient"
	"github.com/mgrau/dexquote/internal/logger"
)

const (
	// Binance REST API endpoint
	BaseAPIURL = "https://api.binance.com"

	bookTickerEndpoint = "/api/v3/ticker/bookTicker"

	httpTimeout = 10 * time.Second
)

// HTTPClientConfig holds configuration for the Binance HTTP client.
type HTTPClientConfig struct {
	BaseURL string        // API base URL (empty = default)
	Timeout time.Duration // Request timeout
}

// HTTPClient provides Binance REST API access for snapshot seeding.
type HTTPClient struct {
	client httpclient.Client
	config HTTPClientConfig
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewHTTPClient creates a new Binance HTTP client.
func NewHTTPClient(cfg HTTPClientConfig, log logger.LoggerInterface) (*HTTPClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseAPIURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("binance"),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithHeaders(map[string]string{
			"Accept": "application/json",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &HTTPClient{
		client: client,
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// GetBookTicker fetches the current top-of-book for a symbol via REST.
func (c *HTTPClient) GetBookTicker(ctx context.Context, symbol string) (*BookTickerSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "pricefeed.binance.http.get_book_ticker",
		trace.WithAttributes(attribute.String("symbol", symbol)),
	)
	defer span.End()

	var result BookTickerSnapshot
	resp, err := c.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("endpoint", "bookTicker"),
			httpclient.NewLabel("symbol", symbol),
		),
		httpclient.WithResponseErrorHandler(apiErrorHandler),
	).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get(ctx, bookTickerEndpoint)

	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodePriceFeedUnavailable,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch book ticker"))
	}

	if resp.IsError() {
		return nil, apperror.New(apperror.CodePriceFeedUnavailable,
			apperror.WithContext(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.String())))
	}

	span.SetAttributes(
		attribute.String("bid", result.BidPrice),
		attribute.String("ask", result.AskPrice),
	)

	c.logger.Debug(ctx, "fetched book ticker via HTTP",
		"symbol", symbol, "bid", result.BidPrice, "ask", result.AskPrice)

	return &result, nil
}

// APIError represents an error response from the Binance API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error %d: %s", e.Code, e.Message)
}

// apiErrorHandler parses Binance API error responses.
func apiErrorHandler(statusCode int, body []byte) error {
	if statusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	}
	return nil
}
