// Package circuitbreaker wraps sony/gobreaker with app-level defaults and
// error mapping.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mgrau/dexquote/internal/apperror"
)

// Config holds circuit breaker settings.
type Config struct {
	Name         string
	MaxRequests  uint32        // allowed through while half-open
	Interval     time.Duration // cyclic period for clearing counts while closed
	Timeout      time.Duration // open -> half-open transition
	FailureRatio float64       // trip threshold
	MinRequests  uint32        // minimum samples before the ratio applies
}

// DefaultConfig returns settings tuned for flaky public quote APIs: trip
// after >=60% failures over at least 5 calls, retry after 20s.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      20 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// CircuitBreaker is a typed wrapper around gobreaker.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a circuit breaker from cfg.
func New[T any](cfg Config) *CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
	}
	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn through the breaker. When the circuit is open the call is
// rejected immediately with CodeCircuitOpen.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	result, err := c.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			var zero T
			return zero, apperror.New(apperror.CodeCircuitOpen,
				apperror.WithContext(c.cb.Name()),
				apperror.WithCause(err))
		}
		var zero T
		return zero, err
	}
	return result, nil
}

// State returns the current breaker state name.
func (c *CircuitBreaker[T]) State() string {
	return c.cb.State().String()
}

// Name returns the breaker name.
func (c *CircuitBreaker[T]) Name() string {
	return c.cb.Name()
}
