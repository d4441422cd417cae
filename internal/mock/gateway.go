// Package mock provides an in-memory gateway for tests and dry runs.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"grid_trader/internal/core"
	apperrors "grid_trader/pkg/errors"
)

// Gateway implements core.IGateway against in-memory state. All behavior is
// scriptable: metadata, the book ticker, per-order status overrides, and
// failure injection per call site.
type Gateway struct {
	mu sync.Mutex

	metadata *core.SymbolMetadata
	bidAsk   core.BidAsk

	orders          map[string]*core.Order
	statusOverrides map[string]core.OrderStatus

	// Recorded calls for assertions.
	Placed   []*core.Order
	Canceled []string

	FailMetadata   bool
	FailTicker     bool
	FailPlace      bool
	FailPlaceSides map[core.Side]bool
	FailCancel     bool
	FailStatus     map[string]bool
}

func NewGateway() *Gateway {
	return &Gateway{
		metadata: &core.SymbolMetadata{
			Symbol:      "BTCUSDT",
			TickSize:    decimal.RequireFromString("0.01"),
			StepSize:    decimal.RequireFromString("0.001"),
			MinNotional: decimal.RequireFromString("10"),
		},
		bidAsk: core.BidAsk{
			Bid: decimal.RequireFromString("100"),
			Ask: decimal.RequireFromString("100"),
		},
		orders:          make(map[string]*core.Order),
		statusOverrides: make(map[string]core.OrderStatus),
		FailPlaceSides:  make(map[core.Side]bool),
		FailStatus:      make(map[string]bool),
	}
}

// SetMetadata replaces the symbol metadata returned by GetSymbolMetadata.
// Passing nil makes the symbol unavailable.
func (g *Gateway) SetMetadata(md *core.SymbolMetadata) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metadata = md
}

// SetBidAsk replaces the book ticker.
func (g *Gateway) SetBidAsk(bid, ask decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bidAsk = core.BidAsk{Bid: bid, Ask: ask}
}

// SetOrderStatus scripts the status reported for one order.
func (g *Gateway) SetOrderStatus(clientOrderID string, status core.OrderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusOverrides[clientOrderID] = status
}

// OpenOrders returns a snapshot of the resting orders.
func (g *Gateway) OpenOrders() []*core.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*core.Order, 0, len(g.orders))
	for _, o := range g.orders {
		cp := *o
		out = append(out, &cp)
	}
	return out
}

func (g *Gateway) GetSymbolMetadata(ctx context.Context, symbol string) (*core.SymbolMetadata, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailMetadata || g.metadata == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSymbolUnavailable, symbol)
	}
	md := *g.metadata
	md.Symbol = symbol
	return &md, nil
}

func (g *Gateway) GetBidAsk(ctx context.Context, symbol string) (core.BidAsk, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailTicker {
		return core.BidAsk{}, fmt.Errorf("%w: no book ticker for %s", apperrors.ErrMarketUnavailable, symbol)
	}
	return g.bidAsk, nil
}

func (g *Gateway) PlaceLimitOrder(ctx context.Context, req *core.PlaceOrderRequest) (*core.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailPlace || g.FailPlaceSides[req.Side] {
		return nil, fmt.Errorf("%w: order rejected", apperrors.ErrOrderRejected)
	}
	order := &core.Order{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Status:        core.OrderStatusNew,
	}
	g.orders[req.ClientOrderID] = order
	cp := *order
	g.Placed = append(g.Placed, &cp)
	return &cp, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailCancel {
		return fmt.Errorf("%w: cancel failed", apperrors.ErrNetwork)
	}
	delete(g.orders, clientOrderID)
	g.Canceled = append(g.Canceled, clientOrderID)
	return nil
}

func (g *Gateway) GetOrderStatus(ctx context.Context, symbol, clientOrderID string) (*core.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailStatus[clientOrderID] {
		return nil, fmt.Errorf("%w: status query failed", apperrors.ErrNetwork)
	}
	o, ok := g.orders[clientOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, clientOrderID)
	}
	cp := *o
	if status, ok := g.statusOverrides[clientOrderID]; ok {
		cp.Status = status
	}
	return &cp, nil
}

func (g *Gateway) CancelAllOpenOrders(ctx context.Context, symbol string) ([]*core.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailCancel {
		return nil, fmt.Errorf("%w: cancel failed", apperrors.ErrNetwork)
	}
	canceled := make([]*core.Order, 0, len(g.orders))
	for id, o := range g.orders {
		cp := *o
		cp.Status = core.OrderStatusCanceled
		canceled = append(canceled, &cp)
		g.Canceled = append(g.Canceled, id)
		delete(g.orders, id)
	}
	return canceled, nil
}
