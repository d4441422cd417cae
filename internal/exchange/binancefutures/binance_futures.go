// Package binancefutures implements the gateway interface for Binance USD-M
// futures. Grid trading on futures carries leverage risk; the gateway is
// behavior-identical to the spot one on purpose so the engine cannot tell
// the products apart.
package binancefutures

import (
	"context"
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
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

// Gateway implements core.IGateway for Binance USD-M futures.
type Gateway struct {
	client  *futures.Client
	limiter *rate.Limiter
	logger  core.ILogger

	infoExec   failsafe.Executor[*futures.ExchangeInfo]
	tickerExec failsafe.Executor[[]*futures.BookTicker]
	placeExec  failsafe.Executor[*futures.CreateOrderResponse]
	orderExec  failsafe.Executor[*futures.Order]
	cancelExec failsafe.Executor[*futures.CancelOrderResponse]
	listExec   failsafe.Executor[[]*futures.Order]
}

// New creates a Binance futures gateway.
func New(cfg *config.ExchangeConfig, logger core.ILogger) (*Gateway, error) {
	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
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
		logger:  logger.WithField("gateway", "binance_futures"),

		infoExec:   failsafe.With[*futures.ExchangeInfo](base.NewRetryPolicy[*futures.ExchangeInfo]()),
		tickerExec: failsafe.With[[]*futures.BookTicker](base.NewRetryPolicy[[]*futures.BookTicker]()),
		placeExec:  failsafe.With[*futures.CreateOrderResponse](base.NewRetryPolicy[*futures.CreateOrderResponse]()),
		orderExec:  failsafe.With[*futures.Order](base.NewRetryPolicy[*futures.Order]()),
		cancelExec: failsafe.With[*futures.CancelOrderResponse](base.NewRetryPolicy[*futures.CancelOrderResponse]()),
		listExec:   failsafe.With[[]*futures.Order](base.NewRetryPolicy[[]*futures.Order]()),
	}, nil
}

// GetSymbolMetadata resolves quantization units from the contract filter
// list. The futures exchange-info endpoint has no symbol filter, so the full
// listing is scanned.
func (g *Gateway) GetSymbolMetadata(ctx context.Context, symbol string) (*core.SymbolMetadata, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	info, err := g.infoExec.Get(func() (*futures.ExchangeInfo, error) {
		return g.client.NewExchangeInfoService().Do(ctx)
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

	tickers, err := g.tickerExec.Get(func() ([]*futures.BookTicker, error) {
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
	resp, err := g.placeExec.Get(func() (*futures.CreateOrderResponse, error) {
		return g.client.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(futures.SideType(req.Side)).
			Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
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

// CancelOrder cancels a resting order, tolerating orders that are already gone.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := g.cancelExec.Get(func() (*futures.CancelOrderResponse, error) {
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

	o, err := g.orderExec.Get(func() (*futures.Order, error) {
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

// CancelAllOpenOrders lists the resting orders, then cancels them in one
// exchange call.
func (g *Gateway) CancelAllOpenOrders(ctx context.Context, symbol string) ([]*core.Order, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	open, err := g.listExec.Get(func() ([]*futures.Order, error) {
		return g.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	if len(open) == 0 {
		return nil, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := g.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return nil, fmt.Errorf("cancel all open orders: %w", err)
	}

	canceled := make([]*core.Order, 0, len(open))
	for _, o := range open {
		order, convErr := g.toOrder(o, orderid.RemoveBrokerPrefix(brokerExchange, o.ClientOrderID))
		if convErr != nil {
			continue
		}
		order.Status = core.OrderStatusCanceled
		canceled = append(canceled, order)
	}
	return canceled, nil
}

func (g *Gateway) toOrder(o *futures.Order, clientOrderID string) (*core.Order, error) {
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
