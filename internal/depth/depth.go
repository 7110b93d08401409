// Package depth derives cumulative totals, depth percentages, display ordering
// and the spread from one side of the book. Nothing here keeps state between calls.
package depth

import (
	"slices"

	"depthbook/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Source walks one side of the book from the best price outward.
// Walk stops as soon as fn returns false.
type Source interface {
	Side() types.Side
	Walk(fn func(level types.PriceLevel) bool)
}

// BestFirst returns the ordering that puts the best price of side first
func BestFirst(side types.Side) types.Ordering {
	if side == types.Asks {
		return types.Ascending
	}
	return types.Descending
}

// LayoutFor selects the display ordering for a window width. Below the
// breakpoint both sides are listed descending; an unknown width (<= 0) is
// treated as wide.
func LayoutFor(windowWidth, breakpoint int) types.Layout {
	if windowWidth > 0 && windowWidth < breakpoint {
		return types.Layout{Bids: types.Descending, Asks: types.Descending}
	}
	return types.Layout{Bids: types.Descending, Asks: types.Ascending}
}

// Recompute walks src best-first, keeps at most limit levels (0 keeps all),
// annotates each with its cumulative total and depth percentage and returns
// them in the requested order.
func Recompute(src Source, order types.Ordering, limit int) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, capacityHint(limit))
	total := decimal.Zero

	src.Walk(func(level types.PriceLevel) bool {
		total = total.Add(level.Size)
		levels = append(levels, types.PriceLevel{
			Price: level.Price,
			Size:  level.Size,
			Total: total,
		})
		return limit <= 0 || len(levels) < limit
	})

	if len(levels) == 0 {
		return levels
	}

	maxTotal := levels[len(levels)-1].Total
	for i := range levels {
		levels[i].Depth = Percent(levels[i].Total, maxTotal)
	}

	if order != BestFirst(src.Side()) {
		slices.Reverse(levels)
	}
	return levels
}

// Percent returns round(total / maxTotal * 100), or 0 when maxTotal is not positive
func Percent(total, maxTotal decimal.Decimal) int {
	if maxTotal.Sign() <= 0 {
		return 0
	}
	return int(total.Div(maxTotal).Mul(hundred).Round(0).IntPart())
}

// Spread returns the absolute gap between the best ask and best bid and that
// gap as a percentage of the best bid. Both are zero when either side is empty.
func Spread(bestBid, bestAsk decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if bestBid.IsZero() || bestAsk.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	spread := bestAsk.Sub(bestBid).Abs()
	return spread, spread.Div(bestBid).Mul(hundred).Round(2)
}

func capacityHint(limit int) int {
	if limit > 0 {
		return limit
	}
	return 64
}

// sliceSource is a Source over a fixed set of levels
type sliceSource struct {
	side   types.Side
	levels []types.PriceLevel
}

// NewSliceSource returns a Source over a copy of levels sorted best-first.
// Later entries win when prices repeat.
func NewSliceSource(side types.Side, levels []types.PriceLevel) Source {
	byPrice := make(map[string]types.PriceLevel, len(levels))
	for _, level := range levels {
		byPrice[level.Price.String()] = level
	}

	sorted := make([]types.PriceLevel, 0, len(byPrice))
	for _, level := range byPrice {
		sorted = append(sorted, level)
	}
	slices.SortFunc(sorted, func(a, b types.PriceLevel) int {
		if side == types.Asks {
			return a.Price.Cmp(b.Price)
		}
		return b.Price.Cmp(a.Price)
	})

	return &sliceSource{side: side, levels: sorted}
}

func (s *sliceSource) Side() types.Side { return s.side }

func (s *sliceSource) Walk(fn func(level types.PriceLevel) bool) {
	for _, level := range s.levels {
		if !fn(level) {
			return
		}
	}
}
