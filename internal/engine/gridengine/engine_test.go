package gridengine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid_trader/internal/core"
	"grid_trader/internal/mock"
	"grid_trader/pkg/logging"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T, gw *mock.Gateway, maxOrders int) *Engine {
	t.Helper()
	e, err := New(gw, Config{
		Symbol:     "BTCUSDT",
		GapPercent: d("0.01"),
		Quantity:   d("0.5"),
		MaxOrders:  maxOrders,
	}, logging.NopLogger{})
	require.NoError(t, err)
	return e
}

func TestNewRejectsBadConfig(t *testing.T) {
	gw := mock.NewGateway()
	log := logging.NopLogger{}

	_, err := New(gw, Config{Symbol: "", GapPercent: d("0.01"), Quantity: d("1"), MaxOrders: 3}, log)
	assert.Error(t, err)

	_, err = New(gw, Config{Symbol: "BTCUSDT", GapPercent: d("1"), Quantity: d("1"), MaxOrders: 3}, log)
	assert.Error(t, err)

	_, err = New(gw, Config{Symbol: "BTCUSDT", GapPercent: d("0.01"), Quantity: d("0"), MaxOrders: 3}, log)
	assert.Error(t, err)

	_, err = New(gw, Config{Symbol: "BTCUSDT", GapPercent: d("0.01"), Quantity: d("1"), MaxOrders: 0}, log)
	assert.Error(t, err)
}

func TestTickBootstrapsBothLadders(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)

	require.NoError(t, e.Tick(context.Background()))

	buys, sells := e.BuyOrders(), e.SellOrders()
	require.Len(t, buys, 1)
	require.Len(t, sells, 1)
	assert.True(t, buys[0].Price.Equal(d("99")), "buy seeded at %s", buys[0].Price)
	assert.True(t, sells[0].Price.Equal(d("101")), "sell seeded at %s", sells[0].Price)
	assert.True(t, buys[0].Quantity.Equal(d("0.5")))
}

func TestTickIsIdempotentWhenNothingChanges(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)

	require.NoError(t, e.Tick(context.Background()))
	placedAfterFirst := len(gw.Placed)

	require.NoError(t, e.Tick(context.Background()))
	require.NoError(t, e.Tick(context.Background()))

	assert.Equal(t, placedAfterFirst, len(gw.Placed), "steady state must not place orders")
	assert.Empty(t, gw.Canceled)
}

func TestFillSpawnsCounterAndReplacement(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	buyID := e.BuyOrders()[0].ClientOrderID // resting at 99
	gw.SetOrderStatus(buyID, core.OrderStatusFilled)
	gw.SetBidAsk(d("98.5"), d("99.5"))

	require.NoError(t, e.Tick(context.Background()))

	buys, sells := e.BuyOrders(), e.SellOrders()
	require.Len(t, buys, 1)
	require.Len(t, sells, 2)

	// 99 * 0.99 = 98.01 replacement buy, 99 * 1.01 = 99.99 counter sell.
	assert.True(t, buys[0].Price.Equal(d("98.01")), "replacement buy at %s", buys[0].Price)
	prices := []decimal.Decimal{sells[0].Price, sells[1].Price}
	assert.True(t, prices[0].Equal(d("101")) || prices[1].Equal(d("101")))
	assert.True(t, prices[0].Equal(d("99.99")) || prices[1].Equal(d("99.99")))

	for _, o := range buys {
		assert.NotEqual(t, buyID, o.ClientOrderID, "filled order must be dropped")
	}
}

func TestFillKeptWhenCounterPlacementFails(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	buyID := e.BuyOrders()[0].ClientOrderID
	gw.SetOrderStatus(buyID, core.OrderStatusFilled)
	gw.FailPlace = true

	require.NoError(t, e.Tick(context.Background()))

	buys := e.BuyOrders()
	require.Len(t, buys, 1)
	assert.Equal(t, buyID, buys[0].ClientOrderID, "fill must be retried next tick")
}

func TestFillPlacesReplacementEvenWhenCounterFails(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	buyID := e.BuyOrders()[0].ClientOrderID // resting at 99
	gw.SetOrderStatus(buyID, core.OrderStatusFilled)
	gw.FailPlaceSides[core.SideSell] = true
	gw.SetBidAsk(d("98.5"), d("99.5"))

	require.NoError(t, e.Tick(context.Background()))

	// The filled buy stays tracked for retry, but the same-side replacement
	// at 99 * 0.99 = 98.01 is placed anyway.
	buys := e.BuyOrders()
	require.Len(t, buys, 2)

	var sawFilled, sawReplacement bool
	for _, o := range buys {
		if o.ClientOrderID == buyID {
			sawFilled = true
		}
		if o.Price.Equal(d("98.01")) {
			sawReplacement = true
		}
	}
	assert.True(t, sawFilled, "filled order must stay tracked while the counter side is unplaced")
	assert.True(t, sawReplacement, "replacement must not depend on the counter-side outcome")
}

func TestExternallyCanceledOrderIsDropped(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	sellID := e.SellOrders()[0].ClientOrderID
	gw.SetOrderStatus(sellID, core.OrderStatusCanceled)
	placedBefore := len(gw.Placed)

	require.NoError(t, e.Tick(context.Background()))

	// Dropped without spawning children; depth restoration reseeds the side.
	sells := e.SellOrders()
	require.Len(t, sells, 1)
	assert.NotEqual(t, sellID, sells[0].ClientOrderID)
	assert.Equal(t, placedBefore+1, len(gw.Placed))
}

func TestUnhandledStatusKeepsOrderTracked(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	sellID := e.SellOrders()[0].ClientOrderID
	gw.SetOrderStatus(sellID, core.OrderStatusExpired)
	placedBefore := len(gw.Placed)

	require.NoError(t, e.Tick(context.Background()))

	sells := e.SellOrders()
	require.Len(t, sells, 1)
	assert.Equal(t, sellID, sells[0].ClientOrderID)
	assert.Equal(t, placedBefore, len(gw.Placed))
}

func TestPartialFillKeepsOrderTracked(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	buyID := e.BuyOrders()[0].ClientOrderID
	gw.SetOrderStatus(buyID, core.OrderStatusPartiallyFilled)
	placedBefore := len(gw.Placed)

	require.NoError(t, e.Tick(context.Background()))

	buys := e.BuyOrders()
	require.Len(t, buys, 1)
	assert.Equal(t, buyID, buys[0].ClientOrderID)
	assert.Equal(t, placedBefore, len(gw.Placed), "partial fill spawns nothing")
}

func TestStatusQueryFailureLeavesOrderUntouched(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	buyID := e.BuyOrders()[0].ClientOrderID
	gw.SetOrderStatus(buyID, core.OrderStatusFilled)
	gw.FailStatus[buyID] = true
	placedBefore := len(gw.Placed)

	require.NoError(t, e.Tick(context.Background()))

	buys := e.BuyOrders()
	require.Len(t, buys, 1)
	assert.Equal(t, buyID, buys[0].ClientOrderID)
	assert.Equal(t, placedBefore, len(gw.Placed), "unconfirmed fill must not spawn orders")
}

func TestTickAbortsOnMetadataFailure(t *testing.T) {
	gw := mock.NewGateway()
	gw.FailMetadata = true
	e := newTestEngine(t, gw, 3)

	assert.Error(t, e.Tick(context.Background()))
	assert.Empty(t, gw.Placed)
}

func TestTickAbortsOnUselessQuantizationUnits(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetMetadata(&core.SymbolMetadata{Symbol: "BTCUSDT"})
	e := newTestEngine(t, gw, 3)

	assert.Error(t, e.Tick(context.Background()))
	assert.Empty(t, gw.Placed)
}

func TestUnknownMarketSkipsSeeding(t *testing.T) {
	gw := mock.NewGateway()
	gw.FailTicker = true
	e := newTestEngine(t, gw, 3)

	require.NoError(t, e.Tick(context.Background()))
	assert.Empty(t, gw.Placed)
}

func TestUnknownMarketStillProcessesFills(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	buyID := e.BuyOrders()[0].ClientOrderID
	gw.SetOrderStatus(buyID, core.OrderStatusFilled)
	gw.FailTicker = true

	require.NoError(t, e.Tick(context.Background()))

	// Spawn prices come from the fill price, so no clamping happens.
	require.Len(t, e.BuyOrders(), 1)
	assert.True(t, e.BuyOrders()[0].Price.Equal(d("98.01")))
}

func TestClampPrice(t *testing.T) {
	md := &core.SymbolMetadata{TickSize: d("0.01")}

	tests := []struct {
		name     string
		side     core.Side
		price    string
		bid, ask string
		expected string
	}{
		{"buy above bid snaps to bid", core.SideBuy, "99", "98", "98.5", "98"},
		{"buy below bid untouched", core.SideBuy, "99", "99.5", "100", "99"},
		{"buy with unknown market untouched", core.SideBuy, "99", "0", "0", "99"},
		{"sell below ask snaps to ask", core.SideSell, "100", "99.8", "100.25", "100.25"},
		{"sell above ask untouched", core.SideSell, "101", "99.8", "100.25", "101"},
		{"sell with unknown market untouched", core.SideSell, "100", "0", "0", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampPrice(tt.side, d(tt.price), md, core.BidAsk{Bid: d(tt.bid), Ask: d(tt.ask)})
			assert.True(t, got.Equal(d(tt.expected)), "got %s, want %s", got, tt.expected)
		})
	}
}

func TestClampQuantizesToTick(t *testing.T) {
	md := &core.SymbolMetadata{TickSize: d("0.01")}
	got := clampPrice(core.SideSell, d("100"), md, core.BidAsk{Bid: d("100.1"), Ask: d("100.255")})
	assert.True(t, got.Equal(d("100.25")), "ask must be quantized when snapped, got %s", got)
}

func TestPruneCancelsHigherOfCrowdedPair(t *testing.T) {
	gw := mock.NewGateway()
	e := newTestEngine(t, gw, 3)
	e.buyOrders = []core.Order{
		{ClientOrderID: "low", Price: d("100.00"), Side: core.SideBuy},
		{ClientOrderID: "high", Price: d("100.02"), Side: core.SideBuy},
	}

	e.pruneSide(context.Background(), core.SideBuy)

	require.Len(t, e.buyOrders, 1)
	assert.Equal(t, "low", e.buyOrders[0].ClientOrderID)
	assert.Equal(t, []string{"high"}, gw.Canceled)
}

func TestPruneKeepsWellSpacedOrders(t *testing.T) {
	gw := mock.NewGateway()
	e := newTestEngine(t, gw, 3)
	e.sellOrders = []core.Order{
		{ClientOrderID: "a", Price: d("100"), Side: core.SideSell},
		{ClientOrderID: "b", Price: d("101"), Side: core.SideSell},
		{ClientOrderID: "c", Price: d("102"), Side: core.SideSell},
	}

	e.pruneSide(context.Background(), core.SideSell)

	assert.Len(t, e.sellOrders, 3)
	assert.Empty(t, gw.Canceled)
}

func TestPruneSinglePassOverAdjacency(t *testing.T) {
	gw := mock.NewGateway()
	e := newTestEngine(t, gw, 5)
	// 100.00 / 100.01 / 100.02: both adjacent pairs are crowded, so the
	// single pass cancels 100.01 and 100.02. The 100.00/100.02 pair formed
	// by the first removal is not re-examined until the next tick.
	e.buyOrders = []core.Order{
		{ClientOrderID: "p1", Price: d("100.00"), Side: core.SideBuy},
		{ClientOrderID: "p2", Price: d("100.01"), Side: core.SideBuy},
		{ClientOrderID: "p3", Price: d("100.02"), Side: core.SideBuy},
	}

	e.pruneSide(context.Background(), core.SideBuy)

	require.Len(t, e.buyOrders, 1)
	assert.Equal(t, "p1", e.buyOrders[0].ClientOrderID)
}

func TestPruneKeepsOrderWhenCancelFails(t *testing.T) {
	gw := mock.NewGateway()
	gw.FailCancel = true
	e := newTestEngine(t, gw, 3)
	e.buyOrders = []core.Order{
		{ClientOrderID: "low", Price: d("100.00"), Side: core.SideBuy},
		{ClientOrderID: "high", Price: d("100.02"), Side: core.SideBuy},
	}

	e.pruneSide(context.Background(), core.SideBuy)

	assert.Len(t, e.buyOrders, 2)
}

func TestDepthCapEvictsOneExtremePerTick(t *testing.T) {
	gw := mock.NewGateway()
	e := newTestEngine(t, gw, 2)
	md := &core.SymbolMetadata{TickSize: d("0.01"), StepSize: d("0.001")}
	e.buyOrders = []core.Order{
		{ClientOrderID: "b1", Price: d("97"), Side: core.SideBuy},
		{ClientOrderID: "b2", Price: d("98"), Side: core.SideBuy},
		{ClientOrderID: "b3", Price: d("99"), Side: core.SideBuy},
		{ClientOrderID: "b4", Price: d("96"), Side: core.SideBuy},
	}

	e.ensureDepth(context.Background(), core.SideBuy, md, d("100"), d("0.5"))

	require.Len(t, e.buyOrders, 3, "one eviction per tick")
	assert.Equal(t, []string{"b4"}, gw.Canceled, "lowest-priced buy goes first")

	e.ensureDepth(context.Background(), core.SideBuy, md, d("100"), d("0.5"))
	assert.Len(t, e.buyOrders, 2)
	assert.Equal(t, []string{"b4", "b1"}, gw.Canceled)
}

func TestDepthCapEvictsHighestSell(t *testing.T) {
	gw := mock.NewGateway()
	e := newTestEngine(t, gw, 2)
	md := &core.SymbolMetadata{TickSize: d("0.01"), StepSize: d("0.001")}
	e.sellOrders = []core.Order{
		{ClientOrderID: "s1", Price: d("101"), Side: core.SideSell},
		{ClientOrderID: "s2", Price: d("103"), Side: core.SideSell},
		{ClientOrderID: "s3", Price: d("102"), Side: core.SideSell},
	}

	e.ensureDepth(context.Background(), core.SideSell, md, d("100"), d("0.5"))

	require.Len(t, e.sellOrders, 2)
	assert.Equal(t, []string{"s2"}, gw.Canceled)
}

func TestSeedSkippedBelowMinNotional(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetMetadata(&core.SymbolMetadata{
		Symbol:      "BTCUSDT",
		TickSize:    d("0.01"),
		StepSize:    d("0.001"),
		MinNotional: d("1000"),
	})
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)

	require.NoError(t, e.Tick(context.Background()))
	assert.Empty(t, gw.Placed, "49.5 notional is below the 1000 minimum")
}

func TestQuantityQuantizedToStep(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetMetadata(&core.SymbolMetadata{
		Symbol:   "BTCUSDT",
		TickSize: d("0.01"),
		StepSize: d("0.1"),
	})
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)

	require.NoError(t, e.Tick(context.Background()))
	require.NotEmpty(t, gw.Placed)
	assert.True(t, gw.Placed[0].Quantity.Equal(d("0.5")))

	gw2 := mock.NewGateway()
	gw2.SetMetadata(&core.SymbolMetadata{
		Symbol:   "BTCUSDT",
		TickSize: d("0.01"),
		StepSize: d("0.3"),
	})
	gw2.SetBidAsk(d("100"), d("100"))
	e2 := newTestEngine(t, gw2, 3)

	require.NoError(t, e2.Tick(context.Background()))
	require.NotEmpty(t, gw2.Placed)
	assert.True(t, gw2.Placed[0].Quantity.Equal(d("0.3")), "0.5 floors to 0.3 with step 0.3")
}

func TestQuantityQuantizingToZeroAbortsTick(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetMetadata(&core.SymbolMetadata{
		Symbol:   "BTCUSDT",
		TickSize: d("0.01"),
		StepSize: d("1"),
	})
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)

	assert.Error(t, e.Tick(context.Background()))
	assert.Empty(t, gw.Placed)
}

func TestGridSelfBalancesOverManyTicks(t *testing.T) {
	gw := mock.NewGateway()
	gw.SetBidAsk(d("100"), d("100"))
	e := newTestEngine(t, gw, 3)
	require.NoError(t, e.Tick(context.Background()))

	// Fill whatever buy is resting on each of several ticks and verify the
	// ladders stay within bounds and non-empty.
	for i := 0; i < 10; i++ {
		buys := e.BuyOrders()
		require.NotEmpty(t, buys)
		gw.SetOrderStatus(buys[0].ClientOrderID, core.OrderStatusFilled)
		gw.SetBidAsk(buys[0].Price, buys[0].Price.Add(d("0.01")))

		require.NoError(t, e.Tick(context.Background()))

		assert.NotEmpty(t, e.BuyOrders(), "tick %d", i)
		assert.NotEmpty(t, e.SellOrders(), "tick %d", i)
		assert.LessOrEqual(t, len(e.BuyOrders()), 4, "tick %d", i)
		assert.LessOrEqual(t, len(e.SellOrders()), 4, "tick %d", i)
	}
}
