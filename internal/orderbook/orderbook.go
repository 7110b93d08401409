package orderbook

import (
	"errors"
	"sync"

	"depthbook/internal/aggregation"
	"depthbook/internal/depth"
	"depthbook/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrAwaitingSnapshot is returned for deltas that arrive before the session holds a snapshot
var ErrAwaitingSnapshot = errors.New("order book is awaiting a snapshot")

// OrderBook manages the real-time order book state of one session.
// Every mutation holds the write lock for the whole batch, so readers only
// ever observe fully applied batches.
type OrderBook struct {
	mu        sync.RWMutex
	bids      *Side
	asks      *Side
	pending   []types.Change
	threshold int
	productID string
	session   uuid.UUID
	synced    bool
	stats     types.Stats
	logger    zerolog.Logger
}

// New creates an empty OrderBook for productID. Buffered changes are flushed
// once more than threshold of them have accumulated.
func New(productID string, threshold int, logger zerolog.Logger) *OrderBook {
	if threshold < 0 {
		threshold = 0
	}
	return &OrderBook{
		bids:      newSide(types.Bids),
		asks:      newSide(types.Asks),
		pending:   make([]types.Change, 0, threshold+1),
		threshold: threshold,
		productID: productID,
		session:   uuid.New(),
		logger:    logger.With().Str("component", "orderbook").Logger(),
	}
}

// ApplySnapshot replaces both sides wholesale. Levels with a non-positive size
// are dropped and any buffered changes are discarded.
func (ob *OrderBook) ApplySnapshot(bids, asks []types.PriceLevel) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.clear()
	ob.asks.clear()
	for _, level := range bids {
		ob.bids.Set(level.Price, level.Size)
	}
	for _, level := range asks {
		ob.asks.Set(level.Price, level.Size)
	}

	ob.discardPending()
	ob.synced = true
	ob.stats.SnapshotsApplied++

	ob.logger.Debug().
		Str("session", ob.session.String()).
		Int("bids", ob.bids.Len()).
		Int("asks", ob.asks.Len()).
		Msg("snapshot applied")
}

// ApplyChanges applies changes in order; the last change for a price wins.
// The book is left untouched when it is awaiting a snapshot.
func (ob *OrderBook) ApplyChanges(changes []types.Change) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if !ob.synced {
		ob.stats.ChangesDiscarded += int64(len(changes))
		return ErrAwaitingSnapshot
	}

	ob.applyLocked(changes)
	return nil
}

// Enqueue buffers changes and flushes the buffer into the book once it holds
// more than the threshold. It reports whether a flush happened.
func (ob *OrderBook) Enqueue(changes []types.Change) (bool, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if !ob.synced {
		ob.stats.ChangesDiscarded += int64(len(changes))
		return false, ErrAwaitingSnapshot
	}

	ob.pending = append(ob.pending, changes...)
	if len(ob.pending) <= ob.threshold {
		return false, nil
	}

	ob.applyLocked(ob.pending)
	ob.pending = ob.pending[:0]
	return true, nil
}

// Flush applies whatever is buffered and returns how many changes that was
func (ob *OrderBook) Flush() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	n := len(ob.pending)
	if n == 0 || !ob.synced {
		return 0
	}

	ob.applyLocked(ob.pending)
	ob.pending = ob.pending[:0]
	return n
}

// Reset clears both sides and the buffer and starts a new session for productID
func (ob *OrderBook) Reset(productID string) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.clear()
	ob.asks.clear()
	ob.discardPending()
	ob.synced = false
	ob.productID = productID
	ob.session = uuid.New()
	ob.stats.Resets++

	ob.logger.Debug().Str("product", productID).Str("session", ob.session.String()).Msg("order book reset")
}

// RequireSnapshot keeps the current levels visible but drops buffered changes
// and refuses further changes until the next snapshot.
func (ob *OrderBook) RequireSnapshot(reason string) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.discardPending()
	if ob.synced {
		ob.logger.Debug().Str("reason", reason).Msg("waiting for a fresh snapshot")
	}
	ob.synced = false
}

// Recompute returns the levels of one side annotated with totals and depth
func (ob *OrderBook) Recompute(side types.Side, order types.Ordering, limit int) []types.PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return depth.Recompute(ob.side(side), order, limit)
}

// Book builds a consistent view of both sides under one read lock
func (ob *OrderBook) Book(opts types.ViewOptions) types.Book {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	book := types.Book{
		ProductID: ob.productID,
		Session:   ob.session,
		Synced:    ob.synced,
		Bids:      depth.Recompute(aggregation.Grouped(ob.bids, opts.Tick), opts.Layout.For(types.Bids), opts.Limit),
		Asks:      depth.Recompute(aggregation.Grouped(ob.asks, opts.Tick), opts.Layout.For(types.Asks), opts.Limit),
		BidLevels: ob.bids.Len(),
		AskLevels: ob.asks.Len(),
		Pending:   len(ob.pending),
	}

	if best, ok := ob.bids.Best(); ok {
		book.BestBid = best.Price
	}
	if best, ok := ob.asks.Best(); ok {
		book.BestAsk = best.Price
	}
	book.Spread, book.SpreadPercent = depth.Spread(book.BestBid, book.BestAsk)

	return book
}

// Level returns the level stored at price on side
func (ob *OrderBook) Level(side types.Side, price decimal.Decimal) (types.PriceLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.side(side).Get(price)
}

// Len returns the number of levels on side
func (ob *OrderBook) Len(side types.Side) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.side(side).Len()
}

// IsSynced returns whether the current session holds a snapshot
func (ob *OrderBook) IsSynced() bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.synced
}

// Product returns the product of the current session
func (ob *OrderBook) Product() string {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.productID
}

// Session returns the id of the current session
func (ob *OrderBook) Session() uuid.UUID {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.session
}

// GetBufferLength returns the number of buffered changes
func (ob *OrderBook) GetBufferLength() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.pending)
}

// GetStats returns a copy of the current statistics
func (ob *OrderBook) GetStats() types.Stats {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.stats
}

// applyLocked applies a batch (must be called with mutex locked)
func (ob *OrderBook) applyLocked(changes []types.Change) {
	for _, change := range changes {
		ob.side(change.Side).Set(change.Price, change.Size)
	}
	ob.stats.BatchesApplied++
	ob.stats.ChangesApplied += int64(len(changes))
}

// discardPending drops buffered changes (must be called with mutex locked)
func (ob *OrderBook) discardPending() {
	ob.stats.ChangesDiscarded += int64(len(ob.pending))
	ob.pending = ob.pending[:0]
}

func (ob *OrderBook) side(label types.Side) *Side {
	if label == types.Asks {
		return ob.asks
	}
	return ob.bids
}
