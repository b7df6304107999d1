// Package domain contains the core domain types for the quoting context.
package domain

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/internal/apperror"
	"github.com/mgrau/dexquote/internal/token"
)

// QuoteRequest describes one swap the user wants priced.
type QuoteRequest struct {
	TokenIn         *token.Token
	TokenOut        *token.Token
	AmountIn        decimal.Decimal // human units, exact
	SlippagePercent float64         // e.g. 0.5 for 0.5%
	DeadlineMinutes int
}

// Validate rejects malformed requests before any network call.
func (r QuoteRequest) Validate() error {
	if r.TokenIn == nil || r.TokenOut == nil {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("tokenIn and tokenOut are required"))
	}
	if r.TokenIn.Equals(r.TokenOut) {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("tokenIn and tokenOut are identical"))
	}
	if !r.AmountIn.IsPositive() {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("amountIn must be positive"))
	}
	if r.SlippagePercent < 0 || r.SlippagePercent >= 100 {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("slippage %.2f%% out of range", r.SlippagePercent)))
	}
	return nil
}

// PairKey returns a stable identifier for the requested pair.
func (r QuoteRequest) PairKey() string {
	return r.TokenIn.ID().String() + ">" + r.TokenOut.ID().String()
}

// Hop is one exchange step inside a route. Consecutive hops sharing the same
// (tokenIn, tokenOut) pair are parallel legs of a split at that position,
// with SplitPercent giving each leg's share.
type Hop struct {
	TokenIn        *token.Token
	TokenOut       *token.Token
	PoolIdentifier string
	ProtocolName   string
	FeeBasisPoints uint32
	SplitPercent   float64 // 0 = whole step flows through this hop
}

// String returns e.g. "WETH->USDC via UniswapV3 (0.30%)".
func (h Hop) String() string {
	return fmt.Sprintf("%s->%s via %s (%.2f%%)",
		h.TokenIn.Symbol(), h.TokenOut.Symbol(), h.ProtocolName,
		float64(h.FeeBasisPoints)/100)
}

// Quote is the canonical result of one source for one request. Amount fields
// are exact decimals and must never round-trip through float64.
type Quote struct {
	ID                 string
	SourceName         string
	TokenIn            *token.Token
	TokenOut           *token.Token
	AmountIn           decimal.Decimal
	AmountOut          decimal.Decimal
	AmountOutMinimum   decimal.Decimal
	PriceImpactPercent float64 // signed; 0 = none/unknown
	Route              []Hop
	GasEstimate        uint64  // gas units
	GasCostUSD         float64 // 0 = unknown
	ValidUntil         time.Time
	FetchedAt          time.Time
}

var quoteSeq atomic.Uint64

// NewQuoteID returns an opaque identifier unique within the process.
func NewQuoteID(sourceName string) string {
	return fmt.Sprintf("%s-%d-%d", sourceName, time.Now().UnixNano(), quoteSeq.Add(1))
}

// ApplySlippage derives amountOutMinimum from a slippage tolerance.
func ApplySlippage(amountOut decimal.Decimal, slippagePercent float64) decimal.Decimal {
	tolerance := decimal.NewFromFloat(slippagePercent).Div(decimal.NewFromInt(100))
	return amountOut.Mul(decimal.NewFromInt(1).Sub(tolerance))
}

// HopCount returns the number of sequential steps in the route, counting a
// split's parallel legs as one step.
func (q *Quote) HopCount() int {
	return len(q.steps())
}

// EffectivePrice returns amountOut/amountIn, or zero for a zero input.
func (q *Quote) EffectivePrice() decimal.Decimal {
	if q.AmountIn.IsZero() {
		return decimal.Zero
	}
	return q.AmountOut.DivRound(q.AmountIn, 18)
}

// Validate enforces the Quote invariants: non-empty route whose endpoints
// match the quoted tokens and whose steps are contiguous, split percentages
// summing to 100 per position, and amountOutMinimum <= amountOut.
func (q *Quote) Validate() error {
	if q.TokenIn == nil || q.TokenOut == nil {
		return normErr(q.SourceName, "missing tokenIn or tokenOut")
	}
	if !q.AmountIn.IsPositive() {
		return normErr(q.SourceName, "non-positive amountIn "+q.AmountIn.String())
	}
	if q.AmountOut.IsNegative() {
		return normErr(q.SourceName, "negative amountOut "+q.AmountOut.String())
	}
	if q.AmountOutMinimum.GreaterThan(q.AmountOut) {
		return normErr(q.SourceName, fmt.Sprintf(
			"amountOutMinimum %s exceeds amountOut %s", q.AmountOutMinimum, q.AmountOut))
	}
	if len(q.Route) == 0 {
		return normErr(q.SourceName, "empty route")
	}

	steps := q.steps()
	if !steps[0].tokenIn.Equals(q.TokenIn) {
		return normErr(q.SourceName, fmt.Sprintf(
			"route starts at %s, want %s", steps[0].tokenIn.Symbol(), q.TokenIn.Symbol()))
	}
	if !steps[len(steps)-1].tokenOut.Equals(q.TokenOut) {
		return normErr(q.SourceName, fmt.Sprintf(
			"route ends at %s, want %s", steps[len(steps)-1].tokenOut.Symbol(), q.TokenOut.Symbol()))
	}
	for i := 0; i < len(steps)-1; i++ {
		if !steps[i].tokenOut.Equals(steps[i+1].tokenIn) {
			return normErr(q.SourceName, fmt.Sprintf(
				"route broken between %s and %s",
				steps[i].tokenOut.Symbol(), steps[i+1].tokenIn.Symbol()))
		}
	}
	for _, st := range steps {
		if err := st.validateSplit(q.SourceName); err != nil {
			return err
		}
	}
	return nil
}

// RouteSummary returns a compact route description for display, e.g.
// "WETH > DAI > USDC".
func (q *Quote) RouteSummary() string {
	steps := q.steps()
	if len(steps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(steps)+1)
	parts = append(parts, steps[0].tokenIn.Symbol())
	for _, st := range steps {
		parts = append(parts, st.tokenOut.Symbol())
	}
	return strings.Join(parts, " > ")
}

// step groups the parallel legs of one route position.
type step struct {
	tokenIn  *token.Token
	tokenOut *token.Token
	legs     []Hop
}

func (s step) validateSplit(source string) error {
	split := false
	total := 0.0
	for _, leg := range s.legs {
		if leg.SplitPercent != 0 {
			split = true
		}
		total += leg.SplitPercent
	}
	if !split {
		if len(s.legs) > 1 {
			return normErr(source, fmt.Sprintf(
				"%d parallel legs for %s->%s without split percentages",
				len(s.legs), s.tokenIn.Symbol(), s.tokenOut.Symbol()))
		}
		return nil
	}
	// Allow for float accumulation from sources reporting proportions.
	if total < 99.99 || total > 100.01 {
		return normErr(source, fmt.Sprintf(
			"split percentages for %s->%s sum to %.2f, want 100",
			s.tokenIn.Symbol(), s.tokenOut.Symbol(), total))
	}
	return nil
}

func (q *Quote) steps() []step {
	var steps []step
	for _, h := range q.Route {
		n := len(steps)
		if n > 0 && steps[n-1].tokenIn.Equals(h.TokenIn) && steps[n-1].tokenOut.Equals(h.TokenOut) {
			steps[n-1].legs = append(steps[n-1].legs, h)
			continue
		}
		steps = append(steps, step{tokenIn: h.TokenIn, tokenOut: h.TokenOut, legs: []Hop{h}})
	}
	return steps
}

func normErr(source, detail string) error {
	return apperror.New(apperror.CodeNormalizationError,
		apperror.WithContext(source+": "+detail))
}
