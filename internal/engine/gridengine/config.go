package gridengine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config holds the grid parameters for a single symbol.
type Config struct {
	Symbol     string
	GapPercent decimal.Decimal
	Quantity   decimal.Decimal
	MaxOrders  int
}

// Validate checks the grid parameters.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !c.GapPercent.IsPositive() || c.GapPercent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("gap_percent must be in (0, 1), got %s", c.GapPercent)
	}
	if !c.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", c.Quantity)
	}
	if c.MaxOrders < 1 {
		return fmt.Errorf("max_orders must be at least 1, got %d", c.MaxOrders)
	}
	return nil
}
