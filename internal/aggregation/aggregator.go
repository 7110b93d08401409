package aggregation

import (
	"depthbook/internal/depth"
	"depthbook/internal/types"

	"github.com/shopspring/decimal"
)

// Aggregator groups price levels into tick-size buckets
type Aggregator struct {
	currentTick types.TickLevel
}

// New creates a new Aggregator instance
func New(tick types.TickLevel) *Aggregator {
	return &Aggregator{
		currentTick: tick,
	}
}

// SetTickLevel updates the tick level for aggregation
func (a *Aggregator) SetTickLevel(tick types.TickLevel) {
	a.currentTick = tick
}

// GetTickLevel returns the current tick level
func (a *Aggregator) GetTickLevel() types.TickLevel {
	return a.currentTick
}

// Group wraps src so that levels falling into the same tick bucket are
// merged into one level whose size is the sum of the bucket. Bids are floored
// and asks are ceiled so grouping never narrows the spread.
func (a *Aggregator) Group(src depth.Source) depth.Source {
	if a.currentTick == types.TickNone {
		return src
	}
	return &groupedSource{src: src, agg: a}
}

// Grouped is a shorthand for New(tick).Group(src)
func Grouped(src depth.Source, tick types.TickLevel) depth.Source {
	return New(tick).Group(src)
}

type groupedSource struct {
	src depth.Source
	agg *Aggregator
}

func (g *groupedSource) Side() types.Side { return g.src.Side() }

// Walk relies on src being best-first: levels of one bucket are contiguous,
// so a bucket is complete as soon as a level maps to a different one.
func (g *groupedSource) Walk(fn func(level types.PriceLevel) bool) {
	var current types.PriceLevel
	open := false
	stopped := false

	g.src.Walk(func(level types.PriceLevel) bool {
		bucket := g.agg.roundToTick(g.src.Side(), level.Price)
		if open && bucket.Equal(current.Price) {
			current.Size = current.Size.Add(level.Size)
			return true
		}
		if open && !fn(current) {
			stopped = true
			return false
		}
		current = types.PriceLevel{Price: bucket, Size: level.Size}
		open = true
		return true
	})

	if open && !stopped {
		fn(current)
	}
}

func (a *Aggregator) roundToTick(side types.Side, price decimal.Decimal) decimal.Decimal {
	if side == types.Asks {
		return a.roundToTickAsk(price)
	}
	return a.roundToTickBid(price)
}

// roundToTickBid rounds a bid price DOWN to maintain proper spread
func (a *Aggregator) roundToTickBid(price decimal.Decimal) decimal.Decimal {
	tickSize := decimal.NewFromFloat(float64(a.currentTick))
	if tickSize.IsZero() {
		return price
	}

	// Floor bids: floor(price / tickSize) * tickSize
	return price.Div(tickSize).Floor().Mul(tickSize)
}

// roundToTickAsk rounds an ask price UP to maintain proper spread
func (a *Aggregator) roundToTickAsk(price decimal.Decimal) decimal.Decimal {
	tickSize := decimal.NewFromFloat(float64(a.currentTick))
	if tickSize.IsZero() {
		return price
	}

	// Ceiling asks: ceil(price / tickSize) * tickSize
	return price.Div(tickSize).Ceil().Mul(tickSize)
}
