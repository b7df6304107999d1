package app

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/token"
)

// funcAdapter delegates to a closure, for per-request scripting.
type funcAdapter struct {
	name string
	fn   func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
}

func (f *funcAdapter) Name() string { return f.name }

func (f *funcAdapter) FetchQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	return f.fn(ctx, req)
}

// echoQuote prices every request at 1000x input so tests can tell which
// request produced a result.
func echoQuote(source string, req domain.QuoteRequest) *domain.Quote {
	out := req.AmountIn.Mul(decimal.NewFromInt(1000))
	return &domain.Quote{
		ID:         domain.NewQuoteID(source),
		SourceName: source,
		TokenIn:    req.TokenIn,
		TokenOut:   req.TokenOut,
		AmountIn:   req.AmountIn,
		AmountOut:  out,
		Route: []domain.Hop{{
			TokenIn:      req.TokenIn,
			TokenOut:     req.TokenOut,
			ProtocolName: source,
		}},
	}
}

func newSessionService(t *testing.T, adapter SourceAdapter) *QuoteService {
	t.Helper()
	collector := newTestCollector(t, DefaultCollectorConfig(), adapter)
	ranker := NewRanker(DefaultRankerConfig(), nil)
	cache := NewQuoteCache(QuoteCacheConfig{TTL: time.Minute})
	t.Cleanup(cache.Stop)
	return NewQuoteService(collector, ranker, cache, testLogger())
}

func sessionRequest(amount string) domain.QuoteRequest {
	return domain.QuoteRequest{
		TokenIn:         token.WETH,
		TokenOut:        token.USDC,
		AmountIn:        decimal.RequireFromString(amount),
		SlippagePercent: 0.5,
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSession_DebounceCollapsesRapidEdits(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: 40 * time.Millisecond, StaleAfter: time.Minute}, testLogger())
	defer s.Dispose()

	// Three edits inside one debounce window: only the last fires.
	s.SetInput(sessionRequest("1"))
	s.SetInput(sessionRequest("12"))
	s.SetInput(sessionRequest("123"))

	if got := s.State().Status; got != StatusDebouncing {
		t.Fatalf("Status = %s, want %s", got, StatusDebouncing)
	}

	waitFor(t, 2*time.Second, func() bool {
		return s.State().Status == StatusSuccess
	})

	mu.Lock()
	gotCalls := calls
	mu.Unlock()
	if gotCalls != 1 {
		t.Errorf("adapter called %d times, want 1", gotCalls)
	}

	state := s.State()
	want := decimal.RequireFromString("123000")
	if !state.Result.BestQuote.AmountOut.Equal(want) {
		t.Errorf("result is for amount %s, want the last edit (123)",
			state.Result.BestQuote.AmountIn)
	}
}

func TestSession_LastRequestWins(t *testing.T) {
	// The first request hangs until cancelled; the second returns at once. The
	// displayed result must belong to the second no matter when the first
	// settles.
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		if req.AmountIn.Equal(decimal.NewFromInt(1)) {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
			}
		}
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: time.Minute}, testLogger())
	defer s.Dispose()

	s.SetInput(sessionRequest("1"))
	waitFor(t, time.Second, func() bool {
		return s.State().Status == StatusFetching
	})

	s.SetInput(sessionRequest("2"))
	waitFor(t, 2*time.Second, func() bool {
		st := s.State()
		return st.Status == StatusSuccess && st.Result != nil
	})

	// Give the superseded round time to settle and try to overwrite.
	time.Sleep(100 * time.Millisecond)

	state := s.State()
	want := decimal.RequireFromString("2000")
	if !state.Result.BestQuote.AmountOut.Equal(want) {
		t.Errorf("AmountOut = %s, want 2000 (the newer request)",
			state.Result.BestQuote.AmountOut)
	}
}

func TestSession_ErrorKeepsPreviousResultDegraded(t *testing.T) {
	var mu sync.Mutex
	fail := false
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, context.DeadlineExceeded
		}
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: time.Minute}, testLogger())
	defer s.Dispose()

	s.SetInput(sessionRequest("1"))
	waitFor(t, 2*time.Second, func() bool {
		return s.State().Status == StatusSuccess
	})

	mu.Lock()
	fail = true
	mu.Unlock()

	s.Refresh(true)
	waitFor(t, 2*time.Second, func() bool {
		return s.State().Status == StatusError
	})

	state := s.State()
	if !state.Degraded {
		t.Error("Degraded should be true when an error follows a success")
	}
	if state.Result == nil {
		t.Fatal("previous result should survive the failed round")
	}
	if state.Err == nil {
		t.Error("Err should carry the failure")
	}
}

func TestSession_ErrorWithoutPriorResultIsNotDegraded(t *testing.T) {
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		return nil, context.DeadlineExceeded
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: time.Minute}, testLogger())
	defer s.Dispose()

	s.SetInput(sessionRequest("1"))
	waitFor(t, 2*time.Second, func() bool {
		return s.State().Status == StatusError
	})

	state := s.State()
	if state.Degraded {
		t.Error("Degraded should be false with nothing to fall back to")
	}
	if state.Result != nil {
		t.Error("Result should be nil after a first-round failure")
	}
}

func TestSession_ResultTurnsStaleWithoutRefetch(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: 50 * time.Millisecond}, testLogger())
	defer s.Dispose()

	s.SetInput(sessionRequest("1"))
	waitFor(t, 2*time.Second, func() bool {
		return s.State().Status == StatusSuccess
	})
	if s.State().IsStale {
		t.Fatal("fresh result should not be stale")
	}

	waitFor(t, 2*time.Second, func() bool {
		return s.State().IsStale
	})

	// Staleness is informational: the result stays displayed and no new
	// round is triggered.
	state := s.State()
	if state.Status != StatusSuccess {
		t.Errorf("Status = %s, want %s", state.Status, StatusSuccess)
	}
	if state.Result == nil {
		t.Error("stale result should remain displayed")
	}
	mu.Lock()
	gotCalls := calls
	mu.Unlock()
	if gotCalls != 1 {
		t.Errorf("adapter called %d times, staleness must not re-fetch", gotCalls)
	}
}

func TestSession_InvalidInputFailsFast(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: time.Minute}, testLogger())
	defer s.Dispose()

	req := sessionRequest("1")
	req.TokenOut = req.TokenIn
	s.SetInput(req)

	state := s.State()
	if state.Status != StatusError {
		t.Fatalf("Status = %s, want immediate %s", state.Status, StatusError)
	}
	if !IsInvalidInput(state.Err) {
		t.Errorf("Err = %v, want INVALID_INPUT", state.Err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	gotCalls := calls
	mu.Unlock()
	if gotCalls != 0 {
		t.Errorf("adapter called %d times for invalid input, want 0", gotCalls)
	}
}

func TestSession_DisposeIsIdempotent(t *testing.T) {
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: time.Minute}, testLogger())

	s.SetInput(sessionRequest("1"))
	s.Dispose()
	s.Dispose()

	// Inputs after disposal are ignored.
	s.SetInput(sessionRequest("2"))
	state := s.State()
	if state.Params == nil || !state.Params.AmountIn.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Params changed after Dispose, session should ignore input")
	}
}

func TestSession_InvalidInputSupersedesInFlightFetch(t *testing.T) {
	// A fetch is in flight when invalid input arrives. The validation error is
	// the newer state; the older round's result must not overwrite it even
	// when the adapter's response eventually lands.
	release := make(chan struct{})
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: time.Minute}, testLogger())
	defer s.Dispose()

	s.SetInput(sessionRequest("1"))
	waitFor(t, time.Second, func() bool {
		return s.State().Status == StatusFetching
	})

	bad := sessionRequest("2")
	bad.TokenOut = bad.TokenIn
	s.SetInput(bad)

	if got := s.State().Status; got != StatusError {
		t.Fatalf("Status = %s, want immediate %s", got, StatusError)
	}

	close(release)
	time.Sleep(100 * time.Millisecond)

	state := s.State()
	if state.Status != StatusError {
		t.Errorf("Status = %s, the superseded round must not overwrite the error", state.Status)
	}
	if state.Result != nil {
		t.Errorf("Result = %v, the superseded round's quotes must be discarded", state.Result)
	}
	if !IsInvalidInput(state.Err) {
		t.Errorf("Err = %v, want INVALID_INPUT", state.Err)
	}
	if state.Params == nil || !state.Params.AmountIn.Equal(decimal.NewFromInt(2)) {
		t.Error("Params should reflect the latest input")
	}
}

func TestSession_SubscriberConvergesOnSettledState(t *testing.T) {
	// Deliveries must arrive in commit order: once State() settles at Success,
	// the last state pushed to a subscriber has to be that same Success, not
	// an earlier transition that raced past it.
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: time.Minute}, testLogger())
	defer s.Dispose()

	var mu sync.Mutex
	last := StatusIdle
	unsub := s.Subscribe(func(st SessionState) {
		mu.Lock()
		last = st.Status
		mu.Unlock()
	})
	defer unsub()

	for i := 1; i <= 10; i++ {
		s.SetInput(sessionRequest(strconv.Itoa(i)))
		waitFor(t, 2*time.Second, func() bool {
			return s.State().Status == StatusSuccess
		})
		waitFor(t, 2*time.Second, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return last == StatusSuccess
		})
	}
}

func TestSession_SubscribeDeliversCurrentStateFirst(t *testing.T) {
	adapter := &funcAdapter{name: "test", fn: func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		return echoQuote("test", req), nil
	}}

	s := NewSession(newSessionService(t, adapter),
		SessionConfig{Debounce: time.Millisecond, StaleAfter: time.Minute}, testLogger())
	defer s.Dispose()

	var mu sync.Mutex
	var seen []Status
	unsub := s.Subscribe(func(st SessionState) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	})
	defer unsub()

	mu.Lock()
	first := seen[0]
	mu.Unlock()
	if first != StatusIdle {
		t.Errorf("first delivered status = %s, want %s", first, StatusIdle)
	}

	s.SetInput(sessionRequest("1"))
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, st := range seen {
			if st == StatusSuccess {
				return true
			}
		}
		return false
	})
}
