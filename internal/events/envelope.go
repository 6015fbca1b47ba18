// Package events fans SSE events out across server processes through Redis
// pub/sub, so a follow handled by one replica reaches a client connected to
// another.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dseinapp/dsein-server/internal/sse"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "dsein:events"

// envelope is the wire form of an sse.Event. UserID travels here because
// sse.Event hides it from clients.
type envelope struct {
	Type      sse.EventType   `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

var errUnsupportedEvent = errors.New("events: unsupported event type")

func encode(event any) ([]byte, error) {
	e, ok := event.(sse.Event)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errUnsupportedEvent, event)
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return json.Marshal(envelope{
		Type:      e.Type,
		UserID:    e.UserID,
		Timestamp: e.Timestamp,
		Data:      data,
	})
}

// decode rebuilds the event. Data stays raw JSON and is written to clients verbatim.
func decode(payload []byte) (sse.Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return sse.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return sse.Event{}, errors.New("events: envelope without type")
	}
	return sse.Event{
		Type:      env.Type,
		UserID:    env.UserID,
		Timestamp: env.Timestamp,
		Data:      env.Data,
	}, nil
}
