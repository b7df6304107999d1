package zeroex

// quoteResponse is the wire shape of GET /swap/v1/quote. Amounts are decimal
// strings in base units; prices and proportions are decimal strings in human
// units.
type quoteResponse struct {
	Price                string        `json:"price"`
	GuaranteedPrice      string        `json:"guaranteedPrice"`
	BuyAmount            string        `json:"buyAmount"`
	SellAmount           string        `json:"sellAmount"`
	BuyTokenAddress      string        `json:"buyTokenAddress"`
	SellTokenAddress     string        `json:"sellTokenAddress"`
	EstimatedGas         string        `json:"estimatedGas"`
	GasPrice             string        `json:"gasPrice"`
	EstimatedPriceImpact string        `json:"estimatedPriceImpact"`
	AllowanceTarget      string        `json:"allowanceTarget"`
	Sources              []quoteSource `json:"sources"`
}

// quoteSource is one liquidity source with its share of the fill.
// Proportion is a decimal string in [0,1]; most sources report "0".
type quoteSource struct {
	Name       string `json:"name"`
	Proportion string `json:"proportion"`
}

// errorResponse is the wire shape of a 4xx body.
type errorResponse struct {
	Code             int    `json:"code"`
	Reason           string `json:"reason"`
	ValidationErrors []struct {
		Field  string `json:"field"`
		Code   int    `json:"code"`
		Reason string `json:"reason"`
	} `json:"validationErrors"`
}
