package orderbook

import (
	"depthbook/internal/types"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const priceLevelsBTreeDegree = 32

// Side is one half of the book, keyed by price. Prices compare numerically,
// so "100" and "100.00" address the same level.
type Side struct {
	label  types.Side
	levels *btree.BTreeG[types.PriceLevel]
}

func newSide(label types.Side) *Side {
	return &Side{
		label: label,
		levels: btree.NewG(priceLevelsBTreeDegree, func(a, b types.PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}),
	}
}

// Side returns the label of this half of the book
func (s *Side) Side() types.Side {
	return s.label
}

// Len returns the number of price levels
func (s *Side) Len() int {
	return s.levels.Len()
}

// Get returns the level at price
func (s *Side) Get(price decimal.Decimal) (types.PriceLevel, bool) {
	return s.levels.Get(types.PriceLevel{Price: price})
}

// Set inserts or overwrites the level at price; a non-positive size removes it
func (s *Side) Set(price, size decimal.Decimal) {
	if size.Sign() <= 0 {
		s.levels.Delete(types.PriceLevel{Price: price})
		return
	}
	s.levels.ReplaceOrInsert(types.PriceLevel{Price: price, Size: size})
}

// Best returns the highest bid or the lowest ask
func (s *Side) Best() (types.PriceLevel, bool) {
	if s.label == types.Asks {
		return s.levels.Min()
	}
	return s.levels.Max()
}

// Walk visits levels from the best price outward until fn returns false
func (s *Side) Walk(fn func(level types.PriceLevel) bool) {
	if s.label == types.Asks {
		s.levels.Ascend(fn)
		return
	}
	s.levels.Descend(fn)
}

func (s *Side) clear() {
	s.levels.Clear(false)
}
