package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField: "Required field is missing",
	CodeInvalidInput:  "Invalid input provided",
	CodeInvalidFormat: "Invalid data format",
	CodeInvalidState:  "Invalid state for this operation",
	CodeNotFound:      "Resource not found",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Source adapter outcomes
	CodeSourceTimeout:     "Liquidity source timed out",
	CodeSourceUnavailable: "Liquidity source unavailable",
	CodeInvalidResponse:   "Liquidity source returned a malformed response",
	CodeNoLiquidity:       "No liquidity for the requested pair",

	// Normalization
	CodeNormalizationError: "Failed to normalize source response",

	// Aggregate-level
	CodeNoQuotesAvailable: "No quotes available from any source",

	// Token registry
	CodeTokenNotFound: "Token not found in registry",

	// Ethereum / on-chain quoting
	CodeEthereumRPCError:    "Ethereum RPC call failed",
	CodeContractCallFailed:  "Smart contract call failed",
	CodeGasEstimationFailed: "Gas estimation failed",

	// Price feed
	CodePriceFeedStale:        "Price feed data is stale",
	CodePriceFeedUnavailable:  "Price feed unavailable",
	CodeWebSocketConnectError: "WebSocket connection error",
	CodeWebSocketClosed:       "WebSocket connection closed",

	// Cache
	CodeCacheExpired: "Cache entry expired",

	// Circuit breaker
	CodeCircuitOpen: "Circuit breaker is open",

	// Session
	CodeSessionDisposed: "Session has been disposed",
}
