package domain

import "time"

// AggregatedResult is the outcome of one fan-out round: every surviving
// quote, ranked best-first. It is derived data, recomputed each round.
type AggregatedResult struct {
	BestQuote   *Quote
	AllQuotes   []*Quote // ranked best-first; AllQuotes[0] == BestQuote
	RequestedAt time.Time
	ExpiresAt   time.Time
}

// IsExpired reports whether the result is past its validity window.
func (r *AggregatedResult) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// SourceNames returns the ranked source names, for logging and display.
func (r *AggregatedResult) SourceNames() []string {
	names := make([]string, len(r.AllQuotes))
	for i, q := range r.AllQuotes {
		names[i] = q.SourceName
	}
	return names
}
