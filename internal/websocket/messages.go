package websocket

import "errors"

type MessageType string

const (
	MessageTypeOrderbook MessageType = "orderbook"
	MessageTypeStats     MessageType = "stats"
	MessageTypeError     MessageType = "error"
)

var (
	errInvalidTick    = errors.New("invalid tick level")
	errInvalidWidth   = errors.New("invalid width")
	errUnknownProduct = errors.New("unknown product")
	errUnknownType    = errors.New("unknown message type")
)

// ClientMessage represents messages sent from client to server
type ClientMessage struct {
	Type    string  `json:"type"`
	Tick    float64 `json:"tick,omitempty"`
	Width   int     `json:"width,omitempty"`
	Product string  `json:"product,omitempty"`
	Killed  bool    `json:"killed,omitempty"`
}

type OrderbookMessage struct {
	Type      MessageType  `json:"type"`
	Exchange  string       `json:"exchange"`
	Product   string       `json:"product"`
	Session   string       `json:"session"`
	Synced    bool         `json:"synced"`
	Killed    bool         `json:"killed"`
	Tick      float64      `json:"tick"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

type StatsMessage struct {
	Type          MessageType `json:"type"`
	Product       string      `json:"product"`
	BestBid       string      `json:"bestBid"`
	BestAsk       string      `json:"bestAsk"`
	MidPrice      string      `json:"midPrice"`
	Spread        string      `json:"spread"`
	SpreadPercent string      `json:"spreadPercent"`
	BidLevels     int         `json:"bidLevels"`
	AskLevels     int         `json:"askLevels"`
	Pending       int         `json:"pending"`
	Timestamp     int64       `json:"timestamp"`
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// BookResponse is the body of GET /book
type BookResponse struct {
	Orderbook OrderbookMessage `json:"orderbook"`
	Stats     StatsMessage     `json:"stats"`
}

type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Total string `json:"total"`
	Depth int    `json:"depth"`
}
