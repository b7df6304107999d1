package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPricePoint_Mid(t *testing.T) {
	tests := []struct {
		name     string
		bid, ask string
		want     string
	}{
		{"midpoint", "3399", "3401", "3400"},
		{"one_sided_bid", "3400", "0", "3400"},
		{"one_sided_ask", "0", "3400", "3400"},
		{"fractional", "1.10", "1.20", "1.15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PricePoint{
				Bid: decimal.RequireFromString(tt.bid),
				Ask: decimal.RequireFromString(tt.ask),
			}
			want := decimal.RequireFromString(tt.want)
			if got := p.Mid(); !got.Equal(want) {
				t.Errorf("Mid() = %s, want %s", got, want)
			}
		})
	}
}

func TestPricePoint_IsStale(t *testing.T) {
	now := time.Now()
	maxAge := 30 * time.Second

	fresh := PricePoint{UpdatedAt: now.Add(-time.Second)}
	if fresh.IsStale(maxAge, now) {
		t.Error("a 1s old point should be fresh at 30s max age")
	}

	old := PricePoint{UpdatedAt: now.Add(-time.Minute)}
	if !old.IsStale(maxAge, now) {
		t.Error("a 60s old point should be stale at 30s max age")
	}

	var never PricePoint
	if !never.IsStale(maxAge, now) {
		t.Error("a zero-time point should always be stale")
	}
}
