package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199): fatal at construction
	ErrCodeInvalidConfiguration ErrorCode = 100
	ErrCodeUnknownTimeframeUnit ErrorCode = 101
	ErrCodeUnknownTransform     ErrorCode = 102
	ErrCodeTransformExists      ErrorCode = 103
	ErrCodeStrategyNotFound     ErrorCode = 104
	ErrCodeInvalidParameter     ErrorCode = 105

	// Data errors (200-299): fatal during warmup/backtest, skipped during streaming
	ErrCodeBarFetchFailed   ErrorCode = 200
	ErrCodeWarmupFailed     ErrorCode = 201
	ErrCodePriceSanity      ErrorCode = 202
	ErrCodeDataNotFound     ErrorCode = 203
	ErrCodeQueryFailed      ErrorCode = 204
	ErrCodeSchedulerStopped ErrorCode = 205

	// Advice errors (300-399): recovered locally, treated as no-op steps
	ErrCodeBuyWhileHolding ErrorCode = 300
	ErrCodeSellWhileFlat   ErrorCode = 301
	ErrCodeUnknownAdvice   ErrorCode = 302
	ErrCodeStrategyRuntime ErrorCode = 303
	ErrCodeCallbackFailed  ErrorCode = 304

	// Capital errors (400-499): trigger an orderly STOP
	ErrCodeInsufficientCapital ErrorCode = 400

	// Persistence errors (500-599): logged and swallowed
	ErrCodeWriteFailed     ErrorCode = 500
	ErrCodeDropFailed      ErrorCode = 501
	ErrCodeRunRecordFailed ErrorCode = 502

	// Order execution errors (600-699): fatal, engine transitions to ERROR
	ErrCodeOrderFailed    ErrorCode = 600
	ErrCodeMarketNotFound ErrorCode = 601

	// Run control errors (700-799)
	ErrCodeRunNotFound     ErrorCode = 700
	ErrCodeRunTerminated   ErrorCode = 701
	ErrCodeRunStateInvalid ErrorCode = 702
	ErrCodeRunExists       ErrorCode = 703
)
