package types

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side identifies one half of the book. Feeds name the halves differently
// ("buy"/"sell", "bid"/"ask", "bids"/"asks"); all of them map onto this type.
type Side int

const (
	Bids Side = iota
	Asks
)

// String returns the canonical label of the side
func (s Side) String() string {
	if s == Asks {
		return "asks"
	}
	return "bids"
}

// ParseSide maps any feed vocabulary onto a Side
func ParseSide(label string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "buy", "bid", "bids", "buys":
		return Bids, true
	case "sell", "ask", "asks", "sells", "offer", "offers":
		return Asks, true
	default:
		return Bids, false
	}
}

// TickLevel represents available tick size options for price grouping
type TickLevel float64

const (
	TickNone TickLevel = 0
	Tick01   TickLevel = 0.1
	Tick1    TickLevel = 1.0
	Tick10   TickLevel = 10.0
	Tick50   TickLevel = 50.0
	Tick100  TickLevel = 100.0
)

// AvailableTickLevels defines the available tick levels in order of precision
var AvailableTickLevels = []TickLevel{
	TickNone,
	Tick01,
	Tick1,
	Tick10,
	Tick50,
	Tick100,
}

// ValidTickLevel reports whether tick is one of AvailableTickLevels
func ValidTickLevel(tick TickLevel) bool {
	for _, available := range AvailableTickLevels {
		if available == tick {
			return true
		}
	}
	return false
}

// PriceLevel represents a single price level in the order book.
// Total and Depth are derived and only meaningful on levels returned by a recompute.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
	Total decimal.Decimal // cumulative size from the best price through this level
	Depth int             // Total as a percentage of the side's largest Total
}

// Change is one incremental instruction for a single price level. Size zero removes the level.
type Change struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Ordering is the direction levels are returned in
type Ordering int

const (
	Descending Ordering = iota
	Ascending
)

// Layout carries the display ordering of each side
type Layout struct {
	Bids Ordering
	Asks Ordering
}

// For returns the ordering used for side
func (l Layout) For(side Side) Ordering {
	if side == Asks {
		return l.Asks
	}
	return l.Bids
}

// ViewOptions controls how a Book is built from the store
type ViewOptions struct {
	Layout Layout
	Tick   TickLevel
	Limit  int // max levels per side, 0 for all
}

// Book is a consistent, fully recomputed read model of both sides
type Book struct {
	ProductID     string
	Session       uuid.UUID
	Synced        bool
	Bids          []PriceLevel
	Asks          []PriceLevel
	BestBid       decimal.Decimal
	BestAsk       decimal.Decimal
	Spread        decimal.Decimal
	SpreadPercent decimal.Decimal
	BidLevels     int
	AskLevels     int
	Pending       int
}

// Stats holds counters about the reconciliation pipeline
type Stats struct {
	SnapshotsApplied int64
	BatchesApplied   int64
	ChangesApplied   int64
	ChangesDiscarded int64
	Resets           int64
}
