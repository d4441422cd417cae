// Package core defines the shared types and interfaces for the grid trader.
package core

import (
	"github.com/shopspring/decimal"
)

// Side is the order side as reported by the exchange.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the exchange-reported order state. The engine only ever
// reads these values; it never assigns them itself.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusPendingCancel   OrderStatus = "PENDING_CANCEL"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Order is a resting limit order tracked by the engine.
type Order struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Status        OrderStatus
}

// SymbolMetadata holds the quantization units the exchange dictates for a symbol.
type SymbolMetadata struct {
	Symbol      string
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinNotional decimal.Decimal
}

// BidAsk is the best bid/ask snapshot. Zero values signal an unknown market.
type BidAsk struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// PlaceOrderRequest describes a limit order to be placed.
type PlaceOrderRequest struct {
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	ClientOrderID string
}
