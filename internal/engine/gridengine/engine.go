// Package gridengine maintains a self-balancing grid of limit orders around
// the market price for one symbol. The engine is deliberately stateless
// across restarts: it trusts only the orders it placed itself and rebuilds
// the grid from an empty book.
package gridengine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"grid_trader/internal/core"
	"grid_trader/internal/telemetry"
	"grid_trader/pkg/orderid"
	"grid_trader/pkg/tradingutils"
)

// crowdingRatio is the minimum relative gap between price-adjacent orders on
// the same side. Pairs closer than this get thinned out.
var crowdingRatio = decimal.RequireFromString("0.001")

// Engine runs the grid for a single symbol. It is not safe for concurrent
// use; the driver calls Tick from one goroutine.
type Engine struct {
	gateway core.IGateway
	cfg     Config
	logger  core.ILogger
	ids     *orderid.Generator

	buyOrders  []core.Order
	sellOrders []core.Order
}

// New creates an Engine with empty ladders.
func New(gateway core.IGateway, cfg Config, logger core.ILogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("grid config: %w", err)
	}
	return &Engine{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.WithField("symbol", cfg.Symbol),
		ids:     orderid.NewGenerator(),
	}, nil
}

// BuyOrders returns a snapshot of the tracked buy ladder.
func (e *Engine) BuyOrders() []core.Order {
	return append([]core.Order(nil), e.buyOrders...)
}

// SellOrders returns a snapshot of the tracked sell ladder.
func (e *Engine) SellOrders() []core.Order {
	return append([]core.Order(nil), e.sellOrders...)
}

// Tick runs one reconciliation pass: refresh metadata and the book, detect
// fills and spawn their replacements, thin out crowded orders, then restore
// grid depth. A metadata failure aborts the whole pass; a book failure only
// degrades it, since fills can still be processed with the market unknown.
func (e *Engine) Tick(ctx context.Context) error {
	md, err := e.gateway.GetSymbolMetadata(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("symbol metadata: %w", err)
	}
	if !md.TickSize.IsPositive() && !md.StepSize.IsPositive() {
		return fmt.Errorf("symbol %s has no usable quantization units", e.cfg.Symbol)
	}

	market, err := e.gateway.GetBidAsk(ctx, e.cfg.Symbol)
	if err != nil {
		e.logger.Warn("book ticker unavailable, continuing with unknown market", "error", err)
		market = core.BidAsk{}
	}

	qty := tradingutils.Quantize(e.cfg.Quantity, md.StepSize)
	if !qty.IsPositive() {
		return fmt.Errorf("quantity %s quantizes to zero with step %s", e.cfg.Quantity, md.StepSize)
	}

	e.reconcileSide(ctx, core.SideBuy, md, market, qty)
	e.reconcileSide(ctx, core.SideSell, md, market, qty)

	e.pruneSide(ctx, core.SideBuy)
	e.pruneSide(ctx, core.SideSell)

	e.ensureDepth(ctx, core.SideBuy, md, market.Bid, qty)
	e.ensureDepth(ctx, core.SideSell, md, market.Ask, qty)

	telemetry.OpenOrders.WithLabelValues(string(core.SideBuy)).Set(float64(len(e.buyOrders)))
	telemetry.OpenOrders.WithLabelValues(string(core.SideSell)).Set(float64(len(e.sellOrders)))
	return nil
}

func (e *Engine) ladder(side core.Side) *[]core.Order {
	if side == core.SideBuy {
		return &e.buyOrders
	}
	return &e.sellOrders
}

// reconcileSide polls the exchange state of every tracked order on one side,
// highest price first. Orders placed during the pass are not revisited until
// the next tick.
func (e *Engine) reconcileSide(ctx context.Context, side core.Side, md *core.SymbolMetadata, market core.BidAsk, qty decimal.Decimal) {
	ladder := e.ladder(side)
	tracked := append([]core.Order(nil), *ladder...)
	sortByPriceDesc(tracked)

	for _, o := range tracked {
		current, err := e.gateway.GetOrderStatus(ctx, e.cfg.Symbol, o.ClientOrderID)
		if err != nil {
			e.logger.Warn("order status query failed, keeping order tracked",
				"client_order_id", o.ClientOrderID, "error", err)
			continue
		}

		switch current.Status {
		case core.OrderStatusNew:
			// Still resting.
		case core.OrderStatusPartiallyFilled:
			e.logger.Debug("order partially filled",
				"client_order_id", o.ClientOrderID, "side", side)
		case core.OrderStatusFilled:
			e.logger.Info("order filled",
				"client_order_id", o.ClientOrderID, "side", side, "price", o.Price)
			if e.handleFill(ctx, o, md, market, qty) {
				*ladder = removeByClientID(*ladder, o.ClientOrderID)
				telemetry.OrdersFilled.WithLabelValues(string(side)).Inc()
			}
		case core.OrderStatusCanceled:
			e.logger.Info("order canceled externally, dropping",
				"client_order_id", o.ClientOrderID, "side", side)
			*ladder = removeByClientID(*ladder, o.ClientOrderID)
		default:
			e.logger.Warn("order in unhandled status, keeping tracked",
				"client_order_id", o.ClientOrderID, "status", current.Status)
		}
	}
}

// handleFill spawns the two children of a filled order: the counter-side
// order that books the spread, and the same-side replacement that keeps the
// ladder populated. Both placements are attempted regardless of the other's
// outcome. Reports whether the filled order may be dropped; a failed
// counter-side placement keeps it tracked so the fill is retried next tick.
func (e *Engine) handleFill(ctx context.Context, filled core.Order, md *core.SymbolMetadata, market core.BidAsk, qty decimal.Decimal) bool {
	one := decimal.NewFromInt(1)
	up := filled.Price.Mul(one.Add(e.cfg.GapPercent))
	down := filled.Price.Mul(one.Sub(e.cfg.GapPercent))

	var counterPrice, replacePrice decimal.Decimal
	if filled.Side == core.SideBuy {
		counterPrice, replacePrice = up, down
	} else {
		counterPrice, replacePrice = down, up
	}

	counterPlaced := true
	if _, err := e.placeOrder(ctx, filled.Side.Opposite(), counterPrice, qty, md, market); err != nil {
		e.logger.Error("counter order placement failed, will retry fill next tick",
			"filled_order", filled.ClientOrderID, "error", err)
		counterPlaced = false
	}

	if _, err := e.placeOrder(ctx, filled.Side, replacePrice, qty, md, market); err != nil {
		e.logger.Error("replacement order placement failed",
			"filled_order", filled.ClientOrderID, "error", err)
	}
	return counterPlaced
}

// clampPrice snaps an order price that would cross or lag the live market
// back onto the touch. Unknown market (zero bid/ask) leaves prices alone.
func clampPrice(side core.Side, price decimal.Decimal, md *core.SymbolMetadata, market core.BidAsk) decimal.Decimal {
	switch side {
	case core.SideBuy:
		if market.Bid.IsPositive() && price.GreaterThan(market.Bid) {
			return tradingutils.Quantize(market.Bid, md.TickSize)
		}
	case core.SideSell:
		if market.Ask.IsPositive() && price.IsPositive() && price.LessThan(market.Ask) {
			return tradingutils.Quantize(market.Ask, md.TickSize)
		}
	}
	return price
}

// placeOrder quantizes, clamps and places a limit order, appending it to the
// tracked ladder on success.
func (e *Engine) placeOrder(ctx context.Context, side core.Side, price, qty decimal.Decimal, md *core.SymbolMetadata, market core.BidAsk) (*core.Order, error) {
	price = tradingutils.Quantize(price, md.TickSize)
	price = clampPrice(side, price, md, market)
	if !price.IsPositive() {
		return nil, fmt.Errorf("refusing to place %s order at non-positive price %s", side, price)
	}
	if md.MinNotional.IsPositive() && price.Mul(qty).LessThan(md.MinNotional) {
		return nil, fmt.Errorf("notional %s below minimum %s", price.Mul(qty), md.MinNotional)
	}

	clientID := e.ids.Generate(price, side, tradingutils.PriceDecimals(md.TickSize))
	order, err := e.gateway.PlaceLimitOrder(ctx, &core.PlaceOrderRequest{
		Symbol:        e.cfg.Symbol,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		ClientOrderID: clientID,
	})
	if err != nil {
		return nil, err
	}

	ladder := e.ladder(side)
	*ladder = append(*ladder, *order)
	telemetry.OrdersPlaced.WithLabelValues(string(side)).Inc()
	e.logger.Info("order placed",
		"client_order_id", order.ClientOrderID, "side", side, "price", price, "quantity", qty)
	return order, nil
}

// pruneSide cancels the higher-priced order of any price-adjacent pair whose
// relative gap falls below crowdingRatio. One pass over the sorted ladder per
// tick; a crowded run thins out over successive ticks.
func (e *Engine) pruneSide(ctx context.Context, side core.Side) {
	ladder := e.ladder(side)
	if len(*ladder) < 2 {
		return
	}

	sorted := append([]core.Order(nil), *ladder...)
	sortByPriceAsc(sorted)

	removed := make(map[string]bool)
	for i := 0; i+1 < len(sorted); i++ {
		cur, next := sorted[i], sorted[i+1]
		if !cur.Price.IsPositive() {
			continue
		}
		ratio := next.Price.Sub(cur.Price).Div(cur.Price)
		if ratio.GreaterThanOrEqual(crowdingRatio) {
			continue
		}
		if err := e.gateway.CancelOrder(ctx, e.cfg.Symbol, next.ClientOrderID); err != nil {
			e.logger.Warn("crowding cancel failed, keeping order",
				"client_order_id", next.ClientOrderID, "error", err)
			continue
		}
		e.logger.Info("canceled crowded order",
			"client_order_id", next.ClientOrderID, "side", side,
			"price", next.Price, "neighbor_price", cur.Price)
		removed[next.ClientOrderID] = true
		telemetry.OrdersCanceled.WithLabelValues(string(side)).Inc()
	}

	for id := range removed {
		*ladder = removeByClientID(*ladder, id)
	}
}

// ensureDepth seeds an empty ladder from the live market, or evicts the order
// furthest from the market when the ladder outgrows MaxOrders. At most one
// order is seeded or evicted per side per tick.
func (e *Engine) ensureDepth(ctx context.Context, side core.Side, md *core.SymbolMetadata, touch, qty decimal.Decimal) {
	ladder := e.ladder(side)

	if len(*ladder) == 0 {
		if !touch.IsPositive() {
			e.logger.Warn("ladder empty but market unknown, skipping seed", "side", side)
			return
		}
		one := decimal.NewFromInt(1)
		var price decimal.Decimal
		if side == core.SideBuy {
			price = touch.Mul(one.Sub(e.cfg.GapPercent))
		} else {
			price = touch.Mul(one.Add(e.cfg.GapPercent))
		}
		if _, err := e.placeOrder(ctx, side, price, qty, md, core.BidAsk{}); err != nil {
			e.logger.Error("seed order placement failed", "side", side, "error", err)
		}
		return
	}

	if len(*ladder) <= e.cfg.MaxOrders {
		return
	}

	var idx int
	if side == core.SideBuy {
		idx = lowestPriced(*ladder)
	} else {
		idx = highestPriced(*ladder)
	}
	victim := (*ladder)[idx]
	if err := e.gateway.CancelOrder(ctx, e.cfg.Symbol, victim.ClientOrderID); err != nil {
		e.logger.Warn("depth eviction cancel failed",
			"client_order_id", victim.ClientOrderID, "error", err)
		return
	}
	e.logger.Info("evicted order beyond max depth",
		"client_order_id", victim.ClientOrderID, "side", side, "price", victim.Price)
	*ladder = removeByClientID(*ladder, victim.ClientOrderID)
	telemetry.OrdersCanceled.WithLabelValues(string(side)).Inc()
}
