package coinbase

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultURL is the public Coinbase Exchange websocket feed
	DefaultURL = "wss://ws-feed.exchange.coinbase.com"

	// writeWait is the time allowed to write a message to the peer
	writeWait = 10 * time.Second
)

// Config holds configuration for the Coinbase feed
type Config struct {
	URL               string
	Channel           string
	HandshakeTimeout  time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	FrameBuffer       int
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Channel == "" {
		c.Channel = "level2"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = c.ReconnectDelay
	}
	if c.FrameBuffer <= 0 {
		c.FrameBuffer = 1000
	}
	return c
}

// ProductID converts various symbol formats to Coinbase format.
// Examples: BTCUSDT -> BTC-USD, btc-usd -> BTC-USD, ETHUSDC -> ETH-USDC
func ProductID(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if strings.Contains(symbol, "-") {
		return symbol
	}

	if strings.HasSuffix(symbol, "USDT") {
		base := strings.TrimSuffix(symbol, "USDT")
		return fmt.Sprintf("%s-USD", base)
	}

	if strings.HasSuffix(symbol, "USDC") {
		base := strings.TrimSuffix(symbol, "USDC")
		return fmt.Sprintf("%s-USDC", base)
	}

	if strings.HasSuffix(symbol, "USD") && len(symbol) > 3 {
		base := strings.TrimSuffix(symbol, "USD")
		return fmt.Sprintf("%s-USD", base)
	}

	return symbol
}
