// Package binancespot implements the gateway interface for Binance spot.
package binancespot

import (
	"context"
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/failsafe-go/failsafe-go"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"grid_trader/internal/config"
	"grid_trader/internal/core"
	"grid_trader/internal/exchange/base"
	apperrors "grid_trader/pkg/errors"
	"grid_trader/pkg/orderid"
)

const brokerExchange = "binance"

// Gateway implements core.IGateway for Binance spot.
type Gateway struct {
	client  *binance.Client
	limiter *rate.Limiter
	logger  core.ILogger

	infoExec   failsafe.Executor[*binance.ExchangeInfo]
	tickerExec failsafe.Executor[[]*binance.BookTicker]
	placeExec  failsafe.Executor[*binance.CreateOrderResponse]
	orderExec  failsafe.Executor[*binance.Order]
	cancelExec failsafe.Executor[*binance.CancelOrderResponse]
	listExec   failsafe.Executor[[]*binance.Order]
}

// New creates a Binance spot gateway.
func New(cfg *config.ExchangeConfig, logger core.ILogger) (*Gateway, error) {
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	httpClient, err := base.NewHTTPClient(cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("build http client: %w", err)
	}
	client.HTTPClient = httpClient

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 8
	}

	return &Gateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.WithField("gateway", "binance_spot"),

		infoExec:   failsafe.With[*binance.ExchangeInfo](base.NewRetryPolicy[*binance.ExchangeInfo]()),
		tickerExec: failsafe.With[[]*binance.BookTicker](base.NewRetryPolicy[[]*binance.BookTicker]()),
		placeExec:  failsafe.With[*binance.CreateOrderResponse](base.NewRetryPolicy[*binance.CreateOrderResponse]()),
		orderExec:  failsafe.With[*binance.Order](base.NewRetryPolicy[*binance.Order]()),
		cancelExec: failsafe.With[*binance.CancelOrderResponse](base.NewRetryPolicy[*binance.CancelOrderResponse]()),
		listExec:   failsafe.With[[]*binance.Order](base.NewRetryPolicy[[]*binance.Order]()),
	}, nil
}

// GetSymbolMetadata resolves quantization units from the exchange info
// filter list, restricted to symbols in TRADING status.
func (g *Gateway) GetSymbolMetadata(ctx context.Context, symbol string) (*core.SymbolMetadata, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	info, err := g.infoExec.Get(func() (*binance.ExchangeInfo, error) {
		return g.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol || s.Status != "TRADING" {
			continue
		}
		tickSize, stepSize, minNotional := base.ParseSymbolFilters(s.Filters)
		return &core.SymbolMetadata{
			Symbol:      symbol,
			TickSize:    tickSize,
			StepSize:    stepSize,
			MinNotional: minNotional,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", apperrors.ErrSymbolUnavailable, symbol)
}

// GetBidAsk returns the best bid and ask from the book ticker.
func (g *Gateway) GetBidAsk(ctx context.Context, symbol string) (core.BidAsk, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return core.BidAsk{}, err
	}

	tickers, err := g.tickerExec.Get(func() ([]*binance.BookTicker, error) {
		return g.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return core.BidAsk{}, fmt.Errorf("book ticker: %w", err)
	}

	for _, t := range tickers {
		if t.Symbol != symbol {
			continue
		}
		bid, err := decimal.NewFromString(t.BidPrice)
		if err != nil {
			return core.BidAsk{}, fmt.Errorf("parse bid price %q: %w", t.BidPrice, err)
		}
		ask, err := decimal.NewFromString(t.AskPrice)
		if err != nil {
			return core.BidAsk{}, fmt.Errorf("parse ask price %q: %w", t.AskPrice, err)
		}
		return core.BidAsk{Bid: bid, Ask: ask}, nil
	}

	return core.BidAsk{}, fmt.Errorf("%w: no book ticker for %s", apperrors.ErrMarketUnavailable, symbol)
}

// PlaceLimitOrder places a GTC limit order.
func (g *Gateway) PlaceLimitOrder(ctx context.Context, req *core.PlaceOrderRequest) (*core.Order, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	clientID := orderid.AddBrokerPrefix(brokerExchange, req.ClientOrderID)
	resp, err := g.placeExec.Get(func() (*binance.CreateOrderResponse, error) {
		return g.client.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(binance.SideType(req.Side)).
			Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Quantity(req.Quantity.String()).
			Price(req.Price.String()).
			NewClientOrderID(clientID).
			Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("place %s %s@%s: %w", req.Side, req.Quantity, req.Price, err)
	}

	return &core.Order{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Status:        core.OrderStatus(resp.Status),
	}, nil
}

// CancelOrder cancels a resting order. An unknown-order response means the
// order is already gone and is not treated as a failure.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := g.cancelExec.Get(func() (*binance.CancelOrderResponse, error) {
		return g.client.NewCancelOrderService().
			Symbol(symbol).
			OrigClientOrderID(orderid.AddBrokerPrefix(brokerExchange, clientOrderID)).
			Do(ctx)
	})
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -2011 {
			g.logger.Info("order already gone, skipping cancel", "client_order_id", clientOrderID)
			return nil
		}
		return fmt.Errorf("cancel %s: %w", clientOrderID, err)
	}
	return nil
}

// GetOrderStatus queries the exchange-reported state of an order.
func (g *Gateway) GetOrderStatus(ctx context.Context, symbol, clientOrderID string) (*core.Order, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	o, err := g.orderExec.Get(func() (*binance.Order, error) {
		return g.client.NewGetOrderService().
			Symbol(symbol).
			OrigClientOrderID(orderid.AddBrokerPrefix(brokerExchange, clientOrderID)).
			Do(ctx)
	})
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -2013 {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, clientOrderID)
		}
		return nil, fmt.Errorf("get order %s: %w", clientOrderID, err)
	}

	return g.toOrder(o, clientOrderID)
}

// CancelAllOpenOrders cancels every resting order for the symbol one by one,
// returning those that were actually canceled.
func (g *Gateway) CancelAllOpenOrders(ctx context.Context, symbol string) ([]*core.Order, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	open, err := g.listExec.Get(func() ([]*binance.Order, error) {
		return g.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}

	canceled := make([]*core.Order, 0, len(open))
	for _, o := range open {
		if err := g.limiter.Wait(ctx); err != nil {
			return canceled, err
		}
		_, err := g.cancelExec.Get(func() (*binance.CancelOrderResponse, error) {
			return g.client.NewCancelOrderService().Symbol(symbol).OrderID(o.OrderID).Do(ctx)
		})
		if err != nil {
			g.logger.Warn("failed to cancel resting order", "order_id", o.OrderID, "error", err)
			continue
		}
		order, convErr := g.toOrder(o, orderid.RemoveBrokerPrefix(brokerExchange, o.ClientOrderID))
		if convErr != nil {
			continue
		}
		order.Status = core.OrderStatusCanceled
		canceled = append(canceled, order)
	}
	return canceled, nil
}

func (g *Gateway) toOrder(o *binance.Order, clientOrderID string) (*core.Order, error) {
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return nil, fmt.Errorf("parse order price %q: %w", o.Price, err)
	}
	qty, err := decimal.NewFromString(o.OrigQuantity)
	if err != nil {
		return nil, fmt.Errorf("parse order quantity %q: %w", o.OrigQuantity, err)
	}
	return &core.Order{
		ClientOrderID: clientOrderID,
		Symbol:        o.Symbol,
		Side:          core.Side(o.Side),
		Price:         price,
		Quantity:      qty,
		Status:        core.OrderStatus(o.Status),
	}, nil
}
