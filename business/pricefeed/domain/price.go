// Package domain contains the core domain types for the pricefeed context.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is the latest known top-of-book for one exchange symbol.
type PricePoint struct {
	Symbol    string // exchange symbol, e.g. "ETHUSDT"
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	UpdatedAt time.Time
}

// Mid returns the bid/ask midpoint, the single reference price the rest of
// the system consumes.
func (p PricePoint) Mid() decimal.Decimal {
	if p.Bid.IsZero() {
		return p.Ask
	}
	if p.Ask.IsZero() {
		return p.Bid
	}
	return p.Bid.Add(p.Ask).Div(decimal.NewFromInt(2))
}

// MidFloat returns the midpoint as float64 for USD conversions, where the
// precision loss is acceptable.
func (p PricePoint) MidFloat() float64 {
	f, _ := p.Mid().Float64()
	return f
}

// IsStale reports whether the point is older than maxAge at now.
func (p PricePoint) IsStale(maxAge time.Duration, now time.Time) bool {
	if p.UpdatedAt.IsZero() {
		return true
	}
	return now.Sub(p.UpdatedAt) > maxAge
}
