package ingest

import (
	"encoding/json"

	"depthbook/internal/types"
)

// Kind classifies an inbound frame
type Kind int

const (
	KindIgnored Kind = iota
	KindSnapshot
	KindUpdate
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindUpdate:
		return "update"
	case KindControl:
		return "control"
	default:
		return "ignored"
	}
}

// Event is a classified feed message
type Event struct {
	Kind      Kind
	Type      string // "type" field as sent by the feed, may be empty
	ProductID string

	// Snapshot
	Bids []types.PriceLevel
	Asks []types.PriceLevel

	// Update
	Changes []types.Change

	// Dropped counts malformed entries that were skipped
	Dropped int

	// Irrelevant is set when the frame names a product other than the subscribed one
	Irrelevant bool

	// Message carries the text of feed error messages
	Message string
}

// envelope covers both the snapshot/update shapes of the level2 feed and its
// control messages. Entries stay raw so one bad entry cannot fail a frame.
type envelope struct {
	Type      string            `json:"type"`
	ProductID string            `json:"product_id"`
	NumLevels *int              `json:"numLevels"`
	Bids      []json.RawMessage `json:"bids"`
	Asks      []json.RawMessage `json:"asks"`
	Changes   []json.RawMessage `json:"changes"`
	Message   string            `json:"message"`
	Reason    string            `json:"reason"`
}
