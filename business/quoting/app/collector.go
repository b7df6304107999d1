package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/logger"
)

const collectorTracerName = "quoting.collector"

// CollectorConfig holds fan-out settings.
type CollectorConfig struct {
	// OverallTimeout bounds one whole fan-out round. Adapters still running
	// when it elapses are treated as failed, not awaited further.
	OverallTimeout time.Duration
}

// DefaultCollectorConfig returns the standard fan-out settings: 2-3x a
// single adapter's timeout.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{OverallTimeout: 10 * time.Second}
}

// collectorMetrics holds OTEL metric instruments.
type collectorMetrics struct {
	rounds         metric.Int64Counter
	sourceFailures metric.Int64Counter
	roundLatency   metric.Float64Histogram
}

// Collector fans one request out to every configured source adapter
// concurrently and gathers the quotes that survive.
type Collector struct {
	adapters []SourceAdapter
	config   CollectorConfig
	logger   logger.LoggerInterface
	tracer   trace.Tracer
	metrics  *collectorMetrics
}

// NewCollector creates a Collector over the given adapters.
func NewCollector(adapters []SourceAdapter, cfg CollectorConfig, log logger.LoggerInterface) (*Collector, error) {
	c := &Collector{
		adapters: adapters,
		config:   cfg,
		logger:   log,
		tracer:   otel.Tracer(collectorTracerName),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Collector) initMetrics() error {
	meter := otel.Meter(collectorTracerName)
	var err error

	c.metrics = &collectorMetrics{}

	c.metrics.rounds, err = meter.Int64Counter(
		"quoting_fanout_rounds_total",
		metric.WithDescription("Total fan-out rounds"),
	)
	if err != nil {
		return err
	}

	c.metrics.sourceFailures, err = meter.Int64Counter(
		"quoting_source_failures_total",
		metric.WithDescription("Per-source failures swallowed at the fan-out boundary"),
	)
	if err != nil {
		return err
	}

	c.metrics.roundLatency, err = meter.Float64Histogram(
		"quoting_fanout_latency_ms",
		metric.WithDescription("Fan-out round latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

type settled struct {
	source string
	quote  *domain.Quote
	err    error
}

// Collect queries all adapters in parallel and returns the successful quotes,
// in no particular order. Individual failures are logged and counted, never
// surfaced. When every adapter fails the round returns NO_QUOTES_AVAILABLE so
// callers can tell "no route exists" from "nothing answered".
func (c *Collector) Collect(ctx context.Context, req domain.QuoteRequest) ([]*domain.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(c.adapters) == 0 {
		return nil, apperror.New(apperror.CodeNoQuotesAvailable,
			apperror.WithContext("no source adapters configured"))
	}

	ctx, span := c.tracer.Start(ctx, "quoting.collect",
		trace.WithAttributes(
			attribute.String("pair", req.PairKey()),
			attribute.String("amount_in", req.AmountIn.String()),
			attribute.Int("adapters", len(c.adapters)),
		),
	)
	defer span.End()

	start := time.Now()
	c.metrics.rounds.Add(ctx, 1)

	// The overall deadline is independent of per-adapter timeouts: it bounds
	// wall-clock latency no matter how many sources are configured.
	ctx, cancel := context.WithTimeout(ctx, c.config.OverallTimeout)
	defer cancel()

	results := make(chan settled, len(c.adapters))
	for _, adapter := range c.adapters {
		go func(a SourceAdapter) {
			quote, err := a.FetchQuote(ctx, req)
			results <- settled{source: a.Name(), quote: quote, err: err}
		}(adapter)
	}

	var quotes []*domain.Quote
	var failures []string
	pending := len(c.adapters)

	for pending > 0 {
		select {
		case r := <-results:
			pending--
			if r.err != nil {
				c.recordFailure(ctx, req, r.source, r.err)
				failures = append(failures, fmt.Sprintf("%s: %s", r.source, apperror.GetCode(r.err)))
				continue
			}
			quotes = append(quotes, r.quote)
		case <-ctx.Done():
			// Deadline or caller cancellation: whatever has not settled is
			// treated as timed out. The goroutines will finish into the
			// buffered channel and be garbage collected.
			for ; pending > 0; pending-- {
				failures = append(failures, fmt.Sprintf("unsettled: %s", apperror.CodeSourceTimeout))
			}
			c.logger.Debug(ctx, "fan-out deadline elapsed",
				"pair", req.PairKey(), "settled_quotes", len(quotes))
		}
	}

	c.metrics.roundLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.Int("quotes", len(quotes)),
		attribute.Int("failures", len(failures)),
	)

	if len(quotes) == 0 {
		return nil, apperror.New(apperror.CodeNoQuotesAvailable,
			apperror.WithContext(strings.Join(failures, "; ")))
	}
	return quotes, nil
}

// Sources returns the names of the configured adapters.
func (c *Collector) Sources() []string {
	names := make([]string, len(c.adapters))
	for i, a := range c.adapters {
		names[i] = a.Name()
	}
	return names
}

func (c *Collector) recordFailure(ctx context.Context, req domain.QuoteRequest, source string, err error) {
	c.metrics.sourceFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("code", string(apperror.GetCode(err))),
	))
	c.logger.Debug(ctx, "source excluded from round",
		"source", source, "pair", req.PairKey(), "error", err)
}
