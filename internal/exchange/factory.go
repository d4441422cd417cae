// Package exchange selects the gateway implementation for a configured
// product.
package exchange

import (
	"fmt"

	"grid_trader/internal/config"
	"grid_trader/internal/core"
	"grid_trader/internal/exchange/binancefutures"
	"grid_trader/internal/exchange/binancespot"
	"grid_trader/internal/mock"
)

// NewGateway builds the gateway named by cfg.App.Product.
func NewGateway(cfg *config.Config, logger core.ILogger) (core.IGateway, error) {
	switch cfg.App.Product {
	case config.ProductBinanceSpot:
		return binancespot.New(&cfg.Exchange, logger)
	case config.ProductBinanceFutures:
		return binancefutures.New(&cfg.Exchange, logger)
	case config.ProductMock:
		return mock.NewGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported product: %s", cfg.App.Product)
	}
}
