package gridengine

import (
	"sort"

	"grid_trader/internal/core"
)

// sortByPriceAsc orders a ladder from lowest to highest price.
func sortByPriceAsc(orders []core.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Price.LessThan(orders[j].Price)
	})
}

// sortByPriceDesc orders a ladder from highest to lowest price.
func sortByPriceDesc(orders []core.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Price.GreaterThan(orders[j].Price)
	})
}

// removeByClientID drops the order with the given client id, preserving the
// order of the rest. Returns the ladder unchanged if the id is not tracked.
func removeByClientID(orders []core.Order, clientOrderID string) []core.Order {
	for i, o := range orders {
		if o.ClientOrderID == clientOrderID {
			return append(orders[:i:i], orders[i+1:]...)
		}
	}
	return orders
}

// lowestPriced returns the index of the lowest-priced order, -1 when empty.
func lowestPriced(orders []core.Order) int {
	idx := -1
	for i, o := range orders {
		if idx < 0 || o.Price.LessThan(orders[idx].Price) {
			idx = i
		}
	}
	return idx
}

// highestPriced returns the index of the highest-priced order, -1 when empty.
func highestPriced(orders []core.Order) int {
	idx := -1
	for i, o := range orders {
		if idx < 0 || o.Price.GreaterThan(orders[idx].Price) {
			idx = i
		}
	}
	return idx
}
