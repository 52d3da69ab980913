package gateway

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/curator/go/internal/events"
)

// SessionEvent represents the base structure for all session events pushed to
// clients over the websocket.
type SessionEvent struct {
	ID           string          `json:"id"`           // Event UUID
	Conversation string          `json:"conversation"` // Conversation key
	Type         EventType       `json:"type"`         // Event type
	Timestamp    time.Time       `json:"timestamp"`    // Event creation time
	Data         json.RawMessage `json:"data"`         // Event-specific payload
}

// EventType represents the type of session event
type EventType string

const (
	EventTypeSessionStarted   EventType = "SessionStarted"
	EventTypeSessionFinalized EventType = "SessionFinalized"
	EventTypeTweakReverted    EventType = "TweakReverted"
	EventTypePanel            EventType = "Panel"
)

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *SessionEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeSessionStarted:
		var payload events.SessionStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSessionFinalized:
		var payload events.SessionFinalizedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTweakReverted:
		var payload events.TweakRevertedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
