package apperrors

import "errors"

// Standardized gateway errors.
var (
	ErrSymbolUnavailable = errors.New("symbol unavailable")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderRejected     = errors.New("order rejected")
	ErrMarketUnavailable = errors.New("market data unavailable")
	ErrNetwork           = errors.New("network error")
)
