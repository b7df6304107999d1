package app

import (
	"context"
	"sync"
	"time"

	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/observable"
)

// Status is the session's lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusDebouncing Status = "debouncing"
	StatusFetching   Status = "fetching"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// SessionConfig holds per-session timing.
type SessionConfig struct {
	// Debounce delays the fetch after an input change so rapid keystrokes
	// collapse into one request.
	Debounce time.Duration
	// StaleAfter marks a displayed result stale without clearing it.
	// Independent of the cache TTL.
	StaleAfter time.Duration
}

// DefaultSessionConfig returns the standard session timing.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Debounce:   400 * time.Millisecond,
		StaleAfter: 30 * time.Second,
	}
}

// SessionState is a read-only snapshot of the session.
type SessionState struct {
	Status Status
	Params *domain.QuoteRequest
	Result *domain.AggregatedResult
	// IsStale means the result is older than StaleAfter but still displayed
	// (stale-while-revalidate, not a hard invalidation).
	IsStale bool
	// Degraded means Result survives from an earlier successful round while
	// the latest round failed. Distinguishable from merely-stale.
	Degraded bool
	Err      error
}

// Session is the stateful per-UI-query object: it debounces input changes,
// runs fan-out rounds through the QuoteService, and exposes the current best
// quote with staleness semantics. A session is owned by exactly one consumer;
// its state is never shared between sessions.
type Session struct {
	svc    *QuoteService
	config SessionConfig
	logger logger.LoggerInterface

	mu       sync.Mutex
	state    SessionState
	seq      uint64 // most recently issued request; only its result commits
	disposed bool

	debounceTimer *time.Timer
	staleTimer    *time.Timer
	fetchCancel   context.CancelFunc

	baseCtx    context.Context
	baseCancel context.CancelFunc

	obs *observable.Observable[SessionState]

	// Pending snapshot for the publisher goroutine. All subscriber deliveries
	// go through that single goroutine so they arrive in commit order;
	// intermediate snapshots may coalesce, the newest always goes out.
	pubMu      sync.Mutex
	pubPending *SessionState
	pubSignal  chan struct{}
}

// NewSession creates an idle session.
func NewSession(svc *QuoteService, cfg SessionConfig, log logger.LoggerInterface) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		svc:        svc,
		config:     cfg,
		logger:     log,
		state:      SessionState{Status: StatusIdle},
		baseCtx:    ctx,
		baseCancel: cancel,
		obs:        observable.New[SessionState](),
		pubSignal:  make(chan struct{}, 1),
	}
	// Seed the observable so late subscribers always get a replay.
	s.obs.Publish(s.state)
	go s.publishLoop()
	return s
}

// SetInput records a new swap request and (re)starts the debounce timer.
// Another call while debouncing restarts the timer: last write wins.
// Invalid input fails fast without any network activity.
func (s *Session) SetInput(req domain.QuoteRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}

	params := req
	s.state.Params = &params

	if err := req.Validate(); err != nil {
		// The invalid input supersedes whatever round is in flight: bump the
		// sequence so a slow older response cannot commit over this error,
		// and cancel the fetch so it stops promptly.
		s.seq++
		if s.fetchCancel != nil {
			s.fetchCancel()
			s.fetchCancel = nil
		}
		s.stopDebounceLocked()
		s.state.Status = StatusError
		s.state.Err = err
		s.state.Degraded = s.state.Result != nil
		s.publishLocked()
		return
	}

	s.state.Status = StatusDebouncing
	s.state.Err = nil
	s.publishLocked()

	s.stopDebounceLocked()
	s.debounceTimer = time.AfterFunc(s.config.Debounce, func() {
		s.fire(req, false)
	})
}

// Refresh re-fetches the current params immediately, bypassing the debounce.
// force additionally bypasses the quote cache.
func (s *Session) Refresh(force bool) {
	s.mu.Lock()
	if s.disposed || s.state.Params == nil {
		s.mu.Unlock()
		return
	}
	req := *s.state.Params
	s.stopDebounceLocked()
	s.mu.Unlock()

	if err := req.Validate(); err != nil {
		return
	}
	s.fire(req, force)
}

// State returns a snapshot, safe to poll from any goroutine.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe pushes every state change to fn and returns the unsubscribe
// handle. The current state is delivered immediately; later deliveries
// arrive in commit order.
func (s *Session) Subscribe(fn func(SessionState)) observable.Unsubscribe {
	return s.obs.Subscribe(fn)
}

// Dispose releases timers and cancels any in-flight fetch. Idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.stopDebounceLocked()
	if s.staleTimer != nil {
		s.staleTimer.Stop()
		s.staleTimer = nil
	}
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}
	s.baseCancel()
}

// fire issues one fetch round. Only the most recently issued round may commit
// its outcome: a sequence token captured here is compared before committing,
// so a slow older response can never overwrite newer session state.
func (s *Session) fire(req domain.QuoteRequest, skipCache bool) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}

	s.seq++
	mySeq := s.seq

	// Cancel the superseded in-flight round. Correctness does not depend on
	// the adapter honoring this; the sequence check alone keeps stale
	// results out. Cancelling just frees the network call promptly.
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.fetchCancel = cancel

	s.state.Status = StatusFetching
	s.state.Err = nil
	s.publishLocked()
	s.mu.Unlock()

	go func() {
		defer cancel()
		result, err := s.svc.GetQuotes(ctx, req, skipCache)
		s.commit(mySeq, result, err)
	}()
}

func (s *Session) commit(seq uint64, result *domain.AggregatedResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || seq != s.seq {
		// A newer request was issued while this one was in flight.
		s.logger.Debug(s.baseCtx, "discarding superseded quote round", "seq", seq)
		return
	}

	if err != nil {
		s.state.Status = StatusError
		s.state.Err = err
		// Keep the previous successful result visible instead of blanking
		// the display, flagged so the consumer can tell.
		s.state.Degraded = s.state.Result != nil
		s.publishLocked()
		return
	}

	s.state.Status = StatusSuccess
	s.state.Result = result
	s.state.Err = nil
	s.state.IsStale = false
	s.state.Degraded = false
	s.publishLocked()
	s.armStaleTimerLocked(seq)
}

// armStaleTimerLocked starts the freshness timer for the result committed at
// seq. Staleness is informational only: it never triggers a re-fetch.
func (s *Session) armStaleTimerLocked(seq uint64) {
	if s.staleTimer != nil {
		s.staleTimer.Stop()
	}
	s.staleTimer = time.AfterFunc(s.config.StaleAfter, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.disposed || seq != s.seq || s.state.Status != StatusSuccess {
			return
		}
		s.state.IsStale = true
		s.publishLocked()
	})
}

func (s *Session) stopDebounceLocked() {
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

// publishLocked hands the current state to the publisher goroutine. Delivery
// happens outside s.mu so subscriber callbacks can call State() freely, and
// through a single goroutine so a subscriber never sees transitions out of
// commit order.
func (s *Session) publishLocked() {
	snapshot := s.state
	s.pubMu.Lock()
	s.pubPending = &snapshot
	s.pubMu.Unlock()
	select {
	case s.pubSignal <- struct{}{}:
	default:
	}
}

func (s *Session) publishLoop() {
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-s.pubSignal:
		}
		s.pubMu.Lock()
		pending := s.pubPending
		s.pubPending = nil
		s.pubMu.Unlock()
		if pending != nil {
			s.obs.Publish(*pending)
		}
	}
}

// Err convenience predicates for consumers.

// IsNoQuotes reports whether err is the aggregate "nothing answered" failure.
func IsNoQuotes(err error) bool {
	return apperror.Has(err, apperror.CodeNoQuotesAvailable)
}

// IsInvalidInput reports whether err is an input validation failure.
func IsInvalidInput(err error) bool {
	return apperror.Has(err, apperror.CodeInvalidInput)
}
