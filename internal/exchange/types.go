package exchange

import (
	"context"
	"time"
)

// ExchangeName represents supported exchange identifiers
type ExchangeName string

const (
	Coinbase ExchangeName = "coinbase"
)

// IntentType is the action of a subscription intent
type IntentType string

const (
	Subscribe   IntentType = "subscribe"
	Unsubscribe IntentType = "unsubscribe"
)

// Intent is an outbound subscription message
type Intent struct {
	Type       IntentType `json:"type"`
	ProductIDs []string   `json:"product_ids"`
	Channels   []string   `json:"channels"`
}

// NewIntent builds an intent for one product on one channel
func NewIntent(kind IntentType, channel string, productIDs ...string) Intent {
	return Intent{
		Type:       kind,
		ProductIDs: productIDs,
		Channels:   []string{channel},
	}
}

// ConnEvent is a change in the state of the feed connection
type ConnEvent int

const (
	Opened ConnEvent = iota
	Closed
)

func (e ConnEvent) String() string {
	if e == Opened {
		return "opened"
	}
	return "closed"
}

// MessageKind tells a raw frame from a connection event
type MessageKind int

const (
	FrameMessage MessageKind = iota
	EventMessage
)

// Message is one item read from a feed. Frames and connection events share a
// single channel, so a consumer sees them in the order they happened.
type Message struct {
	Kind  MessageKind
	Frame []byte
	Event ConnEvent
}

// NewFrameMessage wraps a raw text frame
func NewFrameMessage(frame []byte) Message {
	return Message{Kind: FrameMessage, Frame: frame}
}

// NewEventMessage wraps a connection state change
func NewEventMessage(event ConnEvent) Message {
	return Message{Kind: EventMessage, Event: event}
}

// Feed defines what the engine needs from a streaming exchange connection
type Feed interface {
	// GetName returns the exchange name
	GetName() ExchangeName

	// Run keeps the connection alive until ctx is cancelled
	Run(ctx context.Context) error

	// Send records and writes a subscription intent
	Send(intent Intent) error

	// Close suspends the feed until the next subscribe intent
	Close() error

	// Messages returns a channel that receives frames and connection events in order
	Messages() <-chan Message

	// IsConnected returns connection status
	IsConnected() bool

	// Health returns connection health information
	Health() HealthStatus
}

// HealthStatus represents connection health information
type HealthStatus struct {
	Connected     bool
	LastMessage   time.Time
	MessageCount  int64
	ErrorCount    int64
	DroppedFrames int64
	Reconnects    int64
	ReconnectTime *time.Time
}
