package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeMissingParameter     ErrorCode = 103
	ErrCodeInsufficientData     ErrorCode = 104

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202

	// Strategy/Engine errors (300-399)
	ErrCodeDuplicateRegistration ErrorCode = 300
	ErrCodeUnknownStrategy       ErrorCode = 301
	ErrCodeUnknownInstance       ErrorCode = 302
	ErrCodeInvalidState          ErrorCode = 303
	ErrCodeCallbackFailed        ErrorCode = 304
	ErrCodeCallbackTimeout       ErrorCode = 305

	// Risk errors (400-499)
	ErrCodeDuplicateRule ErrorCode = 400
	ErrCodeUnknownRule   ErrorCode = 401

	// Trading errors (500-599)
	ErrCodeOrderFailed       ErrorCode = 500
	ErrCodePositionNotFound  ErrorCode = 501
	ErrCodeMarketDataMissing ErrorCode = 502
	ErrCodeInsufficientFunds ErrorCode = 503
	ErrCodeOrderNotFound     ErrorCode = 504

	// Backtest errors (600-699)
	ErrCodeBacktestStateNil   ErrorCode = 600
	ErrCodeBacktestInitFailed ErrorCode = 601
	ErrCodeBacktestRunning    ErrorCode = 602
	ErrCodeBacktestAborted    ErrorCode = 603

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataParseFailed ErrorCode = 701
	ErrCodeInvalidInterval       ErrorCode = 702
	ErrCodeInvalidProvider       ErrorCode = 703
)
