// Package lifecycle reacts to product switches, feed kill/revive and connection
// churn by resetting the book and issuing subscription intents.
package lifecycle

import (
	"sync"

	"depthbook/internal/exchange"

	"github.com/rs/zerolog"
)

// Transport carries subscription intents to the feed
type Transport interface {
	Send(intent exchange.Intent) error
	Close() error
}

// Store is the part of the book the controller drives. Reset starts a new
// session labelled with product.
type Store interface {
	Reset(product string)
	RequireSnapshot(reason string)
}

// Controller owns the subscribed product and the kill switch
type Controller struct {
	mu        sync.Mutex
	transport Transport
	store     Store
	channel   string
	product   string
	killed    bool
	opened    int64
	closed    int64
	logger    zerolog.Logger
}

// New creates a Controller for product. Nothing is sent until Start is called.
func New(transport Transport, store Store, product, channel string, logger zerolog.Logger) *Controller {
	return &Controller{
		transport: transport,
		store:     store,
		channel:   channel,
		product:   product,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Start subscribes to the initial product
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(exchange.Subscribe, c.product)
}

// Product returns the currently subscribed product
func (c *Controller) Product() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.product
}

// Killed reports whether the feed is currently killed
func (c *Controller) Killed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// ProductChanged switches to product. The store is reset so no level of the
// previous product survives; while the feed is killed no intent is sent and
// the new product is subscribed on revive.
func (c *Controller) ProductChanged(product string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if product == c.product {
		return nil
	}

	previous := c.product
	c.product = product
	c.store.Reset(product)

	c.logger.Info().Str("from", previous).Str("to", product).Bool("killed", c.killed).Msg("product changed")

	if c.killed {
		return nil
	}
	if previous != "" {
		if err := c.send(exchange.Unsubscribe, previous); err != nil {
			return err
		}
	}
	return c.send(exchange.Subscribe, product)
}

// FeedKilled closes the feed (true) or resubscribes it (false). Either way the
// store refuses deltas until the next snapshot.
func (c *Controller) FeedKilled(killed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if killed == c.killed {
		return nil
	}
	c.killed = killed

	if killed {
		c.logger.Info().Str("product", c.product).Msg("feed killed")
		c.store.RequireSnapshot("feed killed")
		return c.transport.Close()
	}

	c.logger.Info().Str("product", c.product).Msg("feed revived")
	c.store.RequireSnapshot("feed revived")
	return c.send(exchange.Subscribe, c.product)
}

// ConnectionOpened is informational; the transport restores its own subscriptions
func (c *Controller) ConnectionOpened() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened++
	c.logger.Info().Int64("opened", c.opened).Msg("feed connection opened")
}

// ConnectionClosed marks the book as needing a snapshot; deltas that arrive
// before it are discarded.
func (c *Controller) ConnectionClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.store.RequireSnapshot("connection closed")
	c.logger.Warn().Int64("closed", c.closed).Msg("feed connection closed")
}

// send emits an intent (must be called with mutex locked)
func (c *Controller) send(kind exchange.IntentType, product string) error {
	if product == "" {
		return nil
	}
	intent := exchange.NewIntent(kind, c.channel, product)
	if err := c.transport.Send(intent); err != nil {
		c.logger.Error().Err(err).Str("type", string(kind)).Str("product", product).Msg("failed to send intent")
		return err
	}
	c.logger.Debug().Str("type", string(kind)).Str("product", product).Msg("intent sent")
	return nil
}
