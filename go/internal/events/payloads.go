package events

import (
	"time"
)

// Event payload types that are shared between the ranking engine, the outbox
// relay and the gateway.

// OutcomeItem is the wire form of an item inside a finalized outcome.
type OutcomeItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SessionStartedPayload is the payload for a SessionStarted event
type SessionStartedPayload struct {
	Conversation string    `json:"conversation"`
	ItemCount    int       `json:"item_count"`
	StartedAt    time.Time `json:"started_at"`
}

// SessionFinalizedPayload is the payload for a SessionFinalized event
type SessionFinalizedPayload struct {
	Conversation string        `json:"conversation"`
	Ranking      []OutcomeItem `json:"ranking"`
	Removed      []OutcomeItem `json:"removed"`
	Deferred     []OutcomeItem `json:"deferred"`
	Trigger      string        `json:"trigger"` // confirm_default | confirm_tweak | deadline
	FinalizedAt  time.Time     `json:"finalized_at"`
}

// TweakRevertedPayload is the payload for a TweakReverted event
type TweakRevertedPayload struct {
	Conversation string    `json:"conversation"`
	Reason       string    `json:"reason"`
	RevertedAt   time.Time `json:"reverted_at"`
}
