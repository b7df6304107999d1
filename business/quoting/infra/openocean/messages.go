package openocean

import "encoding/json"

// quoteEnvelope is the wire shape of GET /v3/{chain}/quote. The API always
// answers 200; failures are signaled through the embedded code.
type quoteEnvelope struct {
	Code  int       `json:"code"`
	Error string    `json:"error"`
	Data  quoteData `json:"data"`
}

const codeOK = 200

// quoteData carries the quote. Amounts are decimal strings in base units.
// EstimatedGas arrives as a string or a number depending on the chain.
type quoteData struct {
	InToken      tokenInfo   `json:"inToken"`
	OutToken     tokenInfo   `json:"outToken"`
	InAmount     string      `json:"inAmount"`
	OutAmount    string      `json:"outAmount"`
	EstimatedGas json.Number `json:"estimatedGas"`
	PriceImpact  string      `json:"price_impact"` // e.g. "0.09%"
	Path         routePath   `json:"path"`
}

type tokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// routePath is the nested routing plan: top-level routes split the input,
// each route is a chain of subRoutes (steps), and each step may itself split
// across dexes.
type routePath struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Routes []route `json:"routes"`
}

type route struct {
	Percentage float64    `json:"percentage"`
	SubRoutes  []subRoute `json:"subRoutes"`
}

type subRoute struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Dexes []pathDex `json:"dexes"`
}

type pathDex struct {
	Dex        string  `json:"dex"`
	ID         string  `json:"id"`
	Percentage float64 `json:"percentage"`
}
