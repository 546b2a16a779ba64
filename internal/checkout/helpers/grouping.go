package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/stock"
)

// Line is one requested selection at checkout.
type Line struct {
	ProductID     uuid.UUID
	CombinationID *uuid.UUID
	Quantity      int
}

// Key returns the stock key the line draws from.
func (l Line) Key() stock.Key {
	return stock.NewKey(l.ProductID, l.CombinationID)
}

// KeyDemand is the total quantity requested for one stock key and the first
// line that asked for it.
type KeyDemand struct {
	Key       stock.Key
	Quantity  int
	FirstLine int
}

// GroupLinesByKey sums line quantities per stock key. The result is sorted so
// row locks are always taken in the same order.
func GroupLinesByKey(lines []Line) []KeyDemand {
	index := make(map[string]int, len(lines))
	out := make([]KeyDemand, 0, len(lines))
	for i, line := range lines {
		key := line.Key()
		if pos, ok := index[key.String()]; ok {
			out[pos].Quantity += line.Quantity
			continue
		}
		index[key.String()] = len(out)
		out = append(out, KeyDemand{Key: key, Quantity: line.Quantity, FirstLine: i})
	}

	keys := make([]stock.Key, len(out))
	for i, d := range out {
		keys[i] = d.Key
	}
	stock.SortKeys(keys)
	sorted := make([]KeyDemand, 0, len(out))
	for _, key := range keys {
		sorted = append(sorted, out[index[key.String()]])
	}
	return sorted
}

// LineTotal is unit price times quantity.
func LineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// ComputeTotal sums the priced lines.
func ComputeTotal(prices []decimal.Decimal, lines []Line) decimal.Decimal {
	total := decimal.Zero
	for i, line := range lines {
		if i >= len(prices) {
			break
		}
		total = total.Add(LineTotal(prices[i], line.Quantity))
	}
	return total
}
