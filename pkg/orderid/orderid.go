// Package orderid generates compact client order ids.
//
// The format is {priceInt}_{side}_{unixSec}{seq}, e.g. 65000_B_1702468800001,
// short enough to fit the 36-character Binance limit even after the broker
// prefix is applied.
package orderid

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"grid_trader/internal/core"
)

// Generator produces monotonic client order ids. It is safe for concurrent
// use: a single gateway client may be shared by engines for several symbols.
type Generator struct {
	mu       sync.Mutex
	lastSec  int64
	sequence int
}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a fresh client order id for the given price and side.
// priceDecimals is the price precision used to fold the price into an integer.
func (g *Generator) Generate(price decimal.Decimal, side core.Side, priceDecimals int) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	priceInt := price.Shift(int32(priceDecimals)).IntPart()

	sideCode := "B"
	if side == core.SideSell {
		sideCode = "S"
	}

	currentSec := time.Now().Unix()
	if currentSec != g.lastSec {
		g.lastSec = currentSec
		g.sequence = 0
	}
	g.sequence++

	return fmt.Sprintf("%d_%s_%d%03d", priceInt, sideCode, currentSec, g.sequence)
}

// binancePrefix is the broker id prepended to Binance client order ids.
const binancePrefix = "x-zdfVM8vY"

// AddBrokerPrefix prepends the broker id for the given exchange, truncating
// the tail if the exchange's length limit would be exceeded (Binance: 36).
func AddBrokerPrefix(exchange, clientOrderID string) string {
	switch exchange {
	case "binance":
		result := binancePrefix + clientOrderID
		if len(result) > 36 {
			maxIDLen := 36 - len(binancePrefix)
			result = binancePrefix + clientOrderID[:maxIDLen]
		}
		return result
	default:
		return clientOrderID
	}
}

// RemoveBrokerPrefix strips the broker id added by AddBrokerPrefix.
func RemoveBrokerPrefix(exchange, clientOrderID string) string {
	if exchange == "binance" {
		return strings.TrimPrefix(clientOrderID, binancePrefix)
	}
	return clientOrderID
}
