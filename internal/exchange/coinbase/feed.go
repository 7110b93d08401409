package coinbase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"depthbook/internal/exchange"
	"depthbook/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrSuspended is returned when the feed is killed while a dial is in flight
var ErrSuspended = errors.New("coinbase feed suspended")

// Feed is a reconnecting client for the Coinbase level2 websocket channel.
// It only moves bytes: frames are published unparsed on Messages, between the
// Opened and Closed events of the connection they were read from.
type Feed struct {
	cfg      Config
	logger   zerolog.Logger
	messages chan exchange.Message
	wake     chan struct{}

	health   atomic.Value
	healthMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	products  []string
	suspended bool
}

// NewFeed creates a Coinbase feed. Nothing is dialled until Run is called.
func NewFeed(cfg Config, logger zerolog.Logger) *Feed {
	cfg = cfg.withDefaults()

	f := &Feed{
		cfg:      cfg,
		logger:   logger.With().Str("exchange", string(exchange.Coinbase)).Logger(),
		messages: make(chan exchange.Message, cfg.FrameBuffer),
		wake:     make(chan struct{}, 1),
	}
	f.health.Store(exchange.HealthStatus{})
	return f
}

// GetName returns the exchange name
func (f *Feed) GetName() exchange.ExchangeName {
	return exchange.Coinbase
}

// Messages returns a channel that receives frames and connection events in order
func (f *Feed) Messages() <-chan exchange.Message {
	return f.messages
}

// IsConnected checks if the WebSocket connection is active
func (f *Feed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

// Health returns connection health information
func (f *Feed) Health() exchange.HealthStatus {
	if status, ok := f.health.Load().(exchange.HealthStatus); ok {
		return status
	}
	return exchange.HealthStatus{}
}

// Products returns the products the feed is subscribed to
func (f *Feed) Products() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.products)
}

// Send records the subscription change and writes it when connected. A
// subscribe intent resumes a suspended feed; the subscription is then
// written as part of the next connect.
func (f *Feed) Send(intent exchange.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch intent.Type {
	case exchange.Subscribe:
		for _, product := range intent.ProductIDs {
			if !slices.Contains(f.products, product) {
				f.products = append(f.products, product)
			}
		}
		if f.suspended {
			f.suspended = false
			f.logger.Info().Strs("products", f.products).Msg("feed resumed")
			f.signal()
			return nil
		}
	case exchange.Unsubscribe:
		f.products = slices.DeleteFunc(f.products, func(product string) bool {
			return slices.Contains(intent.ProductIDs, product)
		})
	default:
		return fmt.Errorf("unknown intent type %q", intent.Type)
	}

	if f.conn == nil {
		f.logger.Debug().Str("type", string(intent.Type)).Msg("not connected, intent applied on connect")
		return nil
	}
	if err := f.write(intent); err != nil {
		f.incrementErrorCount()
		return fmt.Errorf("send %s: %w", intent.Type, err)
	}
	return nil
}

// Close suspends the feed and closes the socket. Subscriptions are kept and
// a later subscribe intent resumes the feed.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.suspended {
		return nil
	}
	f.suspended = true
	f.signal()

	if f.conn == nil {
		return nil
	}

	err := f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	if err != nil {
		f.logger.Debug().Err(err).Msg("error sending close message")
	}
	conn := f.conn
	f.conn = nil
	return conn.Close()
}

// Run dials, reads and reconnects with exponential backoff until ctx is done
func (f *Feed) Run(ctx context.Context) error {
	delay := f.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return nil
		}

		if f.isSuspended() {
			select {
			case <-ctx.Done():
				return nil
			case <-f.wake:
			}
			continue
		}

		conn, err := f.connect(ctx)
		if errors.Is(err, ErrSuspended) {
			continue
		}
		if err != nil {
			f.incrementErrorCount()
			f.logger.Warn().Err(err).Dur("retry_in", delay).Msg("connect failed")
			if !f.sleep(ctx, delay) {
				return nil
			}
			delay = min(delay*2, f.cfg.MaxReconnectDelay)
			f.incrementReconnects()
			continue
		}
		delay = f.cfg.ReconnectDelay

		f.publishEvent(ctx, exchange.Opened)
		f.readMessages(ctx, conn)
		f.publishEvent(ctx, exchange.Closed)

		if ctx.Err() != nil {
			return nil
		}
		if f.isSuspended() {
			continue
		}

		f.logger.Warn().Dur("retry_in", delay).Msg("connection lost, reconnecting")
		if !f.sleep(ctx, delay) {
			return nil
		}
		f.incrementReconnects()
	}
}

// connect dials the feed and restores subscriptions
func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: f.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.suspended {
		conn.Close()
		return nil, ErrSuspended
	}

	f.conn = conn
	if len(f.products) > 0 {
		intent := exchange.NewIntent(exchange.Subscribe, f.cfg.Channel, f.products...)
		if err := f.write(intent); err != nil {
			f.conn = nil
			conn.Close()
			return nil, fmt.Errorf("failed to subscribe: %w", err)
		}
		f.logger.Info().Strs("products", f.products).Str("channel", f.cfg.Channel).Msg("subscribed")
	}

	f.updateConnectionStatus(true)
	f.logger.Info().Str("url", f.cfg.URL).Msg("WebSocket connected successfully")
	return conn, nil
}

// readMessages publishes frames until the connection fails or ctx is done
func (f *Feed) readMessages(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.mu.Unlock()
		conn.Close()
		f.updateConnectionStatus(false)
	}()

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !f.isSuspended() {
				f.incrementErrorCount()
				f.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		f.incrementMessageCount()

		select {
		case f.messages <- exchange.NewFrameMessage(message):
		default:
			f.incrementDroppedFrames()
			metrics.DroppedFramesTotal.Inc()
			f.logger.Warn().Msg("frame channel full, skipping frame")
		}
	}
}

// write sends one intent (must be called with mutex locked)
func (f *Feed) write(intent exchange.Intent) error {
	if err := f.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return f.conn.WriteJSON(intent)
}

// publishEvent queues event behind the frames already read; unlike frames it is never dropped
func (f *Feed) publishEvent(ctx context.Context, event exchange.ConnEvent) {
	select {
	case f.messages <- exchange.NewEventMessage(event):
	case <-ctx.Done():
	}
}

// sleep waits for d, a wake signal or ctx; it returns false once ctx is done
func (f *Feed) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-f.wake:
	}
	return true
}

// signal wakes Run without blocking
func (f *Feed) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Feed) isSuspended() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suspended
}

// updateHealth applies fn to the stored health status
func (f *Feed) updateHealth(fn func(status *exchange.HealthStatus)) {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()
	status := f.Health()
	fn(&status)
	f.health.Store(status)
}

// updateConnectionStatus updates the connection status in health
func (f *Feed) updateConnectionStatus(connected bool) {
	f.updateHealth(func(status *exchange.HealthStatus) {
		status.Connected = connected
		if !connected {
			now := time.Now()
			status.ReconnectTime = &now
		}
	})
}

// incrementMessageCount increments the message count in health
func (f *Feed) incrementMessageCount() {
	f.updateHealth(func(status *exchange.HealthStatus) {
		status.MessageCount++
		status.LastMessage = time.Now()
	})
}

// incrementErrorCount increments the error count in health
func (f *Feed) incrementErrorCount() {
	f.updateHealth(func(status *exchange.HealthStatus) {
		status.ErrorCount++
	})
}

func (f *Feed) incrementDroppedFrames() {
	f.updateHealth(func(status *exchange.HealthStatus) {
		status.DroppedFrames++
	})
}

func (f *Feed) incrementReconnects() {
	metrics.WSReconnectsTotal.Inc()
	f.updateHealth(func(status *exchange.HealthStatus) {
		status.Reconnects++
	})
}
