// Package engine serialises feed frames, connection events, control commands
// and timed flushes onto a single goroutine that owns all book mutations.
package engine

import (
	"context"
	"errors"
	"time"

	"depthbook/internal/exchange"
	"depthbook/internal/ingest"
	"depthbook/internal/lifecycle"
	"depthbook/internal/metrics"
	"depthbook/internal/orderbook"
	"depthbook/internal/types"

	"github.com/rs/zerolog"
)

const commandBuffer = 16

// Source delivers raw frames and connection events from a feed, in arrival order
type Source interface {
	Messages() <-chan exchange.Message
}

// Engine routes classified frames into the order book
type Engine struct {
	book          *orderbook.OrderBook
	control       *lifecycle.Controller
	source        Source
	flushInterval time.Duration
	commands      chan func()
	started       chan struct{}
	stopped       chan struct{}
	logger        zerolog.Logger
}

// New wires an engine. flushInterval bounds how long buffered changes wait in a quiet market.
// Commands submitted before Run starts are queued up to a small limit; beyond it they are dropped.
func New(book *orderbook.OrderBook, control *lifecycle.Controller, source Source, flushInterval time.Duration, logger zerolog.Logger) *Engine {
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Engine{
		book:          book,
		control:       control,
		source:        source,
		flushInterval: flushInterval,
		commands:      make(chan func(), commandBuffer),
		started:       make(chan struct{}),
		stopped:       make(chan struct{}),
		logger:        logger.With().Str("component", "engine").Logger(),
	}
}

// Run processes one input at a time until ctx is done. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	close(e.started)
	defer close(e.stopped)

	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	e.logger.Info().Str("product", e.control.Product()).Dur("flush_interval", e.flushInterval).Msg("engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopped")
			return nil
		case msg := <-e.source.Messages():
			e.HandleMessage(msg)
		case cmd := <-e.commands:
			cmd()
		case <-ticker.C:
			e.flush("interval")
		}
	}
}

// HandleMessage dispatches one feed message
func (e *Engine) HandleMessage(msg exchange.Message) {
	switch msg.Kind {
	case exchange.FrameMessage:
		e.HandleFrame(msg.Frame)
	case exchange.EventMessage:
		e.HandleConnEvent(msg.Event)
	}
}

// HandleFrame ingests one raw frame and applies it to the book
func (e *Engine) HandleFrame(raw []byte) {
	start := time.Now()
	defer func() {
		metrics.ApplyLatencySeconds.Observe(time.Since(start).Seconds())
		e.updateGauges()
	}()

	if e.control.Killed() {
		metrics.FramesTotal.WithLabelValues("killed").Inc()
		return
	}

	ev, err := ingest.Ingest(raw, e.control.Product())
	if err != nil {
		metrics.ParseErrorsTotal.Inc()
		e.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("dropping frame")
		return
	}
	metrics.FramesTotal.WithLabelValues(ev.Kind.String()).Inc()

	if ev.Dropped > 0 {
		metrics.DroppedChangesTotal.Add(float64(ev.Dropped))
		e.logger.Debug().Int("dropped", ev.Dropped).Str("type", ev.Type).Msg("malformed entries skipped")
	}
	if ev.Irrelevant {
		metrics.IrrelevantTotal.Inc()
		e.logger.Debug().Str("product", ev.ProductID).Str("subscribed", e.control.Product()).Msg("ignoring frame for another product")
		return
	}

	switch ev.Kind {
	case ingest.KindSnapshot:
		e.book.ApplySnapshot(ev.Bids, ev.Asks)
		metrics.SnapshotsTotal.Inc()
		e.logger.Info().
			Str("product", e.control.Product()).
			Int("bids", len(ev.Bids)).
			Int("asks", len(ev.Asks)).
			Msg("snapshot received")

	case ingest.KindUpdate:
		flushed, err := e.book.Enqueue(ev.Changes)
		if errors.Is(err, orderbook.ErrAwaitingSnapshot) {
			metrics.StaleDeltasTotal.Add(float64(len(ev.Changes)))
			e.logger.Debug().Int("changes", len(ev.Changes)).Msg("discarding delta before snapshot")
			return
		}
		if flushed {
			metrics.FlushesTotal.WithLabelValues("threshold").Inc()
		}

	case ingest.KindControl:
		if ev.Type == "error" {
			metrics.FeedErrorsTotal.Inc()
			e.logger.Error().Str("message", ev.Message).Msg("feed error")
			return
		}
		e.logger.Debug().Str("type", ev.Type).Msg("control message")
	}
}

// HandleConnEvent forwards a connection state change to the lifecycle controller
func (e *Engine) HandleConnEvent(event exchange.ConnEvent) {
	metrics.ConnectionEvents.WithLabelValues(event.String()).Inc()

	switch event {
	case exchange.Opened:
		e.control.ConnectionOpened()
	case exchange.Closed:
		e.control.ConnectionClosed()
	}
	e.updateGauges()
}

// ChangeProduct queues a product switch
func (e *Engine) ChangeProduct(productID string) {
	e.submit(func() {
		if productID == e.control.Product() {
			return
		}
		if err := e.control.ProductChanged(productID); err != nil {
			e.logger.Warn().Err(err).Str("product", productID).Msg("product change intent not sent")
		}
		metrics.ResetsTotal.Inc()
		e.updateGauges()
	})
}

// KillFeed queues a kill (true) or revive (false) of the feed
func (e *Engine) KillFeed(killed bool) {
	e.submit(func() {
		if err := e.control.FeedKilled(killed); err != nil {
			e.logger.Warn().Err(err).Bool("killed", killed).Msg("feed toggle failed")
		}
		e.updateGauges()
	})
}

// Book returns a consistent view of the current session, labelled with its product
func (e *Engine) Book(opts types.ViewOptions) types.Book {
	return e.book.Book(opts)
}

// Product returns the subscribed product
func (e *Engine) Product() string {
	return e.control.Product()
}

// Killed reports whether the feed is killed
func (e *Engine) Killed() bool {
	return e.control.Killed()
}

// Ready reports whether the book holds a snapshot for the current session
func (e *Engine) Ready() bool {
	return e.book.IsSynced()
}

// Stats returns the book counters
func (e *Engine) Stats() types.Stats {
	return e.book.GetStats()
}

// submit hands cmd to the Run loop. It is dropped once Run has returned, or
// when the queue is full and Run has not started yet.
func (e *Engine) submit(cmd func()) {
	select {
	case e.commands <- cmd:
		return
	case <-e.stopped:
		return
	default:
	}

	select {
	case <-e.started:
	default:
		e.logger.Warn().Int("queued", len(e.commands)).Msg("engine not running, dropping command")
		return
	}

	select {
	case e.commands <- cmd:
	case <-e.stopped:
	}
}

func (e *Engine) flush(trigger string) {
	if n := e.book.Flush(); n > 0 {
		metrics.FlushesTotal.WithLabelValues(trigger).Inc()
		e.logger.Debug().Int("changes", n).Str("trigger", trigger).Msg("buffer flushed")
	}
	e.updateGauges()
}

func (e *Engine) updateGauges() {
	metrics.BookLevels.WithLabelValues(types.Bids.String()).Set(float64(e.book.Len(types.Bids)))
	metrics.BookLevels.WithLabelValues(types.Asks.String()).Set(float64(e.book.Len(types.Asks)))
	metrics.PendingChanges.Set(float64(e.book.GetBufferLength()))
}
