package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField Code = "REQUIRED_FIELD"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeInvalidFormat Code = "INVALID_FORMAT"
	CodeInvalidState  Code = "INVALID_STATE"
	CodeNotFound      Code = "NOT_FOUND"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Quote aggregation error codes
const (
	// Source adapter outcomes. All four are expected, recoverable-by-ignoring
	// failures at the fan-out boundary.
	CodeSourceTimeout     Code = "SOURCE_TIMEOUT"
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	CodeInvalidResponse   Code = "INVALID_RESPONSE"
	CodeNoLiquidity       Code = "NO_LIQUIDITY"

	// Normalization
	CodeNormalizationError Code = "NORMALIZATION_ERROR"

	// Aggregate-level: every configured source failed for a request.
	CodeNoQuotesAvailable Code = "NO_QUOTES_AVAILABLE"

	// Token registry
	CodeTokenNotFound Code = "TOKEN_NOT_FOUND"

	// Ethereum / on-chain quoting
	CodeEthereumRPCError    Code = "ETHEREUM_RPC_ERROR"
	CodeContractCallFailed  Code = "CONTRACT_CALL_FAILED"
	CodeGasEstimationFailed Code = "GAS_ESTIMATION_FAILED"

	// Price feed
	CodePriceFeedStale        Code = "PRICE_FEED_STALE"
	CodePriceFeedUnavailable  Code = "PRICE_FEED_UNAVAILABLE"
	CodeWebSocketConnectError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed       Code = "WEBSOCKET_CLOSED"

	// Cache
	CodeCacheExpired Code = "CACHE_EXPIRED"

	// Circuit breaker
	CodeCircuitOpen Code = "CIRCUIT_OPEN"

	// Session
	CodeSessionDisposed Code = "SESSION_DISPOSED"
)

// sourceFailureCodes are the adapter outcomes the fan-out collector swallows.
var sourceFailureCodes = map[Code]struct{}{
	CodeSourceTimeout:      {},
	CodeSourceUnavailable:  {},
	CodeInvalidResponse:    {},
	CodeNoLiquidity:        {},
	CodeNormalizationError: {},
	CodeCircuitOpen:        {},
	CodeRateLimitExceeded:  {},
}

// IsSourceFailure reports whether err is an expected per-source failure that
// should be excluded from a fan-out round rather than surfaced.
func IsSourceFailure(err error) bool {
	_, ok := sourceFailureCodes[GetCode(err)]
	return ok
}
