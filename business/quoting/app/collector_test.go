package app

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/token"
)

// fakeAdapter is a scripted SourceAdapter for fan-out tests.
type fakeAdapter struct {
	name  string
	quote *domain.Quote
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, apperror.New(apperror.CodeSourceTimeout)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func testRequest() domain.QuoteRequest {
	return domain.QuoteRequest{
		TokenIn:         token.WETH,
		TokenOut:        token.USDC,
		AmountIn:        decimal.RequireFromString("1"),
		SlippagePercent: 0.5,
	}
}

func goodQuote(source string) *domain.Quote {
	return &domain.Quote{
		ID:         domain.NewQuoteID(source),
		SourceName: source,
		TokenIn:    token.WETH,
		TokenOut:   token.USDC,
		AmountIn:   decimal.RequireFromString("1"),
		AmountOut:  decimal.RequireFromString("3400"),
		Route: []domain.Hop{{
			TokenIn:      token.WETH,
			TokenOut:     token.USDC,
			ProtocolName: source,
		}},
	}
}

func newTestCollector(t *testing.T, cfg CollectorConfig, adapters ...SourceAdapter) *Collector {
	t.Helper()
	c, err := NewCollector(adapters, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	return c
}

func TestCollector_Collect_AllSucceed(t *testing.T) {
	a := &fakeAdapter{name: "uniswap_v3", quote: goodQuote("uniswap_v3")}
	b := &fakeAdapter{name: "zeroex", quote: goodQuote("zeroex")}
	c := newTestCollector(t, DefaultCollectorConfig(), a, b)

	quotes, err := c.Collect(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("Collect() returned %d quotes, want 2", len(quotes))
	}
}

func TestCollector_Collect_PartialFailureStillSucceeds(t *testing.T) {
	ok := &fakeAdapter{name: "uniswap_v3", quote: goodQuote("uniswap_v3")}
	down := &fakeAdapter{name: "zeroex", err: apperror.New(apperror.CodeSourceUnavailable)}
	noLiq := &fakeAdapter{name: "openocean", err: apperror.New(apperror.CodeNoLiquidity)}
	c := newTestCollector(t, DefaultCollectorConfig(), ok, down, noLiq)

	quotes, err := c.Collect(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Collect() error = %v, want success with one surviving quote", err)
	}
	if len(quotes) != 1 || quotes[0].SourceName != "uniswap_v3" {
		t.Fatalf("Collect() = %v, want single uniswap_v3 quote", quotes)
	}
}

func TestCollector_Collect_AllFailIsNoQuotesAvailable(t *testing.T) {
	a := &fakeAdapter{name: "uniswap_v3", err: apperror.New(apperror.CodeSourceTimeout)}
	b := &fakeAdapter{name: "zeroex", err: apperror.New(apperror.CodeSourceUnavailable)}
	c := newTestCollector(t, DefaultCollectorConfig(), a, b)

	_, err := c.Collect(context.Background(), testRequest())
	if !apperror.Has(err, apperror.CodeNoQuotesAvailable) {
		t.Fatalf("Collect() = %v, want NO_QUOTES_AVAILABLE", err)
	}
}

func TestCollector_Collect_NoAdaptersConfigured(t *testing.T) {
	c := newTestCollector(t, DefaultCollectorConfig())

	_, err := c.Collect(context.Background(), testRequest())
	if !apperror.Has(err, apperror.CodeNoQuotesAvailable) {
		t.Fatalf("Collect() = %v, want NO_QUOTES_AVAILABLE", err)
	}
}

func TestCollector_Collect_OverallDeadlineCutsHungAdapter(t *testing.T) {
	fast := &fakeAdapter{name: "zeroex", quote: goodQuote("zeroex")}
	hung := &fakeAdapter{name: "uniswap_v3", quote: goodQuote("uniswap_v3"), delay: 5 * time.Second}
	c := newTestCollector(t, CollectorConfig{OverallTimeout: 100 * time.Millisecond}, fast, hung)

	start := time.Now()
	quotes, err := c.Collect(context.Background(), testRequest())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(quotes) != 1 || quotes[0].SourceName != "zeroex" {
		t.Fatalf("Collect() = %v, want only the fast quote", quotes)
	}
	if elapsed > time.Second {
		t.Errorf("Collect() took %s, should be bounded by the 100ms deadline", elapsed)
	}
}

func TestCollector_Collect_EachAdapterCalledOnce(t *testing.T) {
	a := &fakeAdapter{name: "uniswap_v3", quote: goodQuote("uniswap_v3")}
	b := &fakeAdapter{name: "zeroex", err: apperror.New(apperror.CodeInvalidResponse)}
	c := newTestCollector(t, DefaultCollectorConfig(), a, b)

	if _, err := c.Collect(context.Background(), testRequest()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if got := a.calls.Load(); got != 1 {
		t.Errorf("adapter %s called %d times, want 1", a.name, got)
	}
	if got := b.calls.Load(); got != 1 {
		t.Errorf("adapter %s called %d times, want 1", b.name, got)
	}
}

func TestCollector_Collect_InvalidRequestRejectedBeforeFanOut(t *testing.T) {
	a := &fakeAdapter{name: "uniswap_v3", quote: goodQuote("uniswap_v3")}
	c := newTestCollector(t, DefaultCollectorConfig(), a)

	req := testRequest()
	req.AmountIn = decimal.Zero

	_, err := c.Collect(context.Background(), req)
	if !apperror.Has(err, apperror.CodeInvalidInput) {
		t.Fatalf("Collect() = %v, want INVALID_INPUT", err)
	}
	if got := a.calls.Load(); got != 0 {
		t.Errorf("adapter called %d times for invalid request, want 0", got)
	}
}

func TestCollector_Sources(t *testing.T) {
	c := newTestCollector(t, DefaultCollectorConfig(),
		&fakeAdapter{name: "uniswap_v3"}, &fakeAdapter{name: "zeroex"})

	got := c.Sources()
	want := []string{"uniswap_v3", "zeroex"}
	if len(got) != len(want) {
		t.Fatalf("Sources() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sources()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
