// Package di contains dependency injection tokens for the quoting context.
package di

import (
	"github.com/mgrau/dexquote/business/quoting/app"
	"github.com/mgrau/dexquote/internal/di"
)

// Public service tokens - exposed to other modules
var (
	QuoteService = di.NewToken[*app.QuoteService]("quoting.QuoteService")
	// SessionFactory creates one Session per consumer (each UI query owns
	// its own).
	SessionFactory = di.NewToken[func() *app.Session]("quoting.SessionFactory")
)

// Private dependency tokens - internal to quoting module
var (
	SourceAdapters = di.NewToken[[]app.SourceAdapter]("quoting:sourceAdapters")
	Collector      = di.NewToken[*app.Collector]("quoting:collector")
	Ranker         = di.NewToken[*app.Ranker]("quoting:ranker")
	QuoteCache     = di.NewToken[*app.QuoteCache]("quoting:quoteCache")
)

// Helper functions for type-safe access
func GetQuoteService(c di.ServiceRegistry) *app.QuoteService {
	return di.GetToken(c, QuoteService)
}

func GetSessionFactory(c di.ServiceRegistry) func() *app.Session {
	return di.GetToken(c, SessionFactory)
}

func GetSourceAdapters(c di.ServiceRegistry) []app.SourceAdapter {
	return di.GetToken(c, SourceAdapters)
}

func GetCollector(c di.ServiceRegistry) *app.Collector {
	return di.GetToken(c, Collector)
}

func GetRanker(c di.ServiceRegistry) *app.Ranker {
	return di.GetToken(c, Ranker)
}

func GetQuoteCache(c di.ServiceRegistry) *app.QuoteCache {
	return di.GetToken(c, QuoteCache)
}
