package amqp

import (
	"encoding/json"
	"fmt"

	"khanevadati/internal/core"
)

const contentTypeJSON = "application/json"

// EncodeEvent serializes a ledger event for the wire.
func EncodeEvent(ev core.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent parses a delivery body. Events without an id or operation are
// rejected since a consumer cannot deduplicate or route them.
func DecodeEvent(data []byte) (core.Event, error) {
	var ev core.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.ID == "" || ev.Operation == "" {
		return core.Event{}, fmt.Errorf("event is missing id or operation")
	}
	return ev, nil
}
