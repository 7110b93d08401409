// Package ingest turns raw level2 feed frames into typed events.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"depthbook/internal/types"

	"github.com/shopspring/decimal"
)

// ErrParse is wrapped by every error returned for frames that are not valid messages
var ErrParse = errors.New("malformed feed frame")

var null = []byte("null")

// Ingest classifies one frame for the currently subscribed productID.
// Malformed entries inside a valid frame are dropped individually and counted
// in Event.Dropped.
func Ingest(raw []byte, productID string) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	ev := Event{
		Type:      env.Type,
		ProductID: env.ProductID,
	}
	ev.Irrelevant = env.ProductID != "" && productID != "" && env.ProductID != productID

	switch {
	case env.NumLevels != nil || env.Type == "snapshot":
		ev.Kind = KindSnapshot
		ev.Bids, ev.Dropped = parseLevels(env.Bids, ev.Dropped)
		ev.Asks, ev.Dropped = parseLevels(env.Asks, ev.Dropped)

	case len(env.Changes) > 0:
		ev.Kind = KindUpdate
		ev.Changes, ev.Dropped = parseChanges(env.Changes)

	case env.Type == "subscriptions" || env.Type == "heartbeat" || env.Type == "error":
		ev.Kind = KindControl
		ev.Message = strings.TrimSpace(strings.Join([]string{env.Message, env.Reason}, " "))

	default:
		ev.Kind = KindIgnored
	}

	return ev, nil
}

// parseLevels decodes [price, size, ...] entries
func parseLevels(entries []json.RawMessage, dropped int) ([]types.PriceLevel, int) {
	levels := make([]types.PriceLevel, 0, len(entries))
	for _, entry := range entries {
		var fields []json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || len(fields) < 2 {
			dropped++
			continue
		}
		price, ok := parsePrice(fields[0])
		if !ok {
			dropped++
			continue
		}
		size, ok := parseSize(fields[1])
		if !ok {
			dropped++
			continue
		}
		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels, dropped
}

// parseChanges decodes [side, price, size] entries
func parseChanges(entries []json.RawMessage) ([]types.Change, int) {
	changes := make([]types.Change, 0, len(entries))
	dropped := 0
	for _, entry := range entries {
		var fields []json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || len(fields) < 3 {
			dropped++
			continue
		}

		var label string
		if err := json.Unmarshal(fields[0], &label); err != nil {
			dropped++
			continue
		}
		side, ok := types.ParseSide(label)
		if !ok {
			dropped++
			continue
		}

		price, ok := parsePrice(fields[1])
		if !ok {
			dropped++
			continue
		}
		size, ok := parseSize(fields[2])
		if !ok {
			dropped++
			continue
		}

		changes = append(changes, types.Change{Side: side, Price: price, Size: size})
	}
	return changes, dropped
}

// parsePrice accepts a JSON number or numeric string greater than zero
func parsePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	price, ok := parseDecimal(raw)
	if !ok || price.Sign() <= 0 {
		return decimal.Zero, false
	}
	return price, true
}

// parseSize accepts a JSON number or numeric string that is not negative
func parseSize(raw json.RawMessage) (decimal.Decimal, bool) {
	size, ok := parseDecimal(raw)
	if !ok || size.Sign() < 0 {
		return decimal.Zero, false
	}
	return size, true
}

func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, null) {
		return decimal.Zero, false
	}
	var value decimal.Decimal
	if err := value.UnmarshalJSON(trimmed); err != nil {
		return decimal.Zero, false
	}
	return value, true
}
