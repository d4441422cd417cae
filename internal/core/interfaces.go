package core

import (
	"context"
)

// IGateway is the exchange capability interface the grid engine depends on.
// One implementation exists per exchange product (spot, futures); all of them
// share identical semantics. Authentication, bounded retry and transport
// errors live entirely behind this interface: a call either succeeds or
// returns an error, which the engine treats as an absence signal.
type IGateway interface {
	// GetSymbolMetadata resolves tick size, step size and minimum notional
	// for a symbol. Returns an error if the symbol is missing, not trading,
	// or the metadata call itself failed.
	GetSymbolMetadata(ctx context.Context, symbol string) (*SymbolMetadata, error)

	// GetBidAsk returns the current best bid and ask.
	GetBidAsk(ctx context.Context, symbol string) (BidAsk, error)

	// PlaceLimitOrder places a GTC limit order with the caller-supplied
	// client order id and returns the placed order.
	PlaceLimitOrder(ctx context.Context, req *PlaceOrderRequest) (*Order, error)

	// CancelOrder cancels a resting order by client order id.
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error

	// GetOrderStatus queries the current state of an order by client order id.
	GetOrderStatus(ctx context.Context, symbol, clientOrderID string) (*Order, error)

	// CancelAllOpenOrders cancels every resting order for the symbol and
	// returns the orders that were canceled. Used once at process startup.
	CancelAllOpenOrders(ctx context.Context, symbol string) ([]*Order, error)
}

// ILogger defines the interface for logging.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
