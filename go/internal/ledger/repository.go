package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/curator/go/internal/events"
	"github.com/mcdev12/curator/go/internal/models"
	"github.com/mcdev12/curator/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// Outbox event types emitted by the ledger.
const (
	EventTypeSessionStarted   = "SessionStarted"
	EventTypeSessionFinalized = "SessionFinalized"
	EventTypeTweakReverted    = "TweakReverted"
)

// Repository is the result ledger. SaveOutcome writes the outcome row and the
// corresponding outbox event in a single transaction, so a persisted outcome
// is guaranteed to eventually reach the event bus.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveOutcome records the finalized triple for a conversation, overwriting
// any previous outcome, and enqueues a SessionFinalized outbox event.
func (r *Repository) SaveOutcome(ctx context.Context, conversation string, outcome models.Outcome, trigger string) error {
	ranking, err := json.Marshal(outcome.Ranking)
	if err != nil {
		return fmt.Errorf("failed to marshal ranking: %w", err)
	}
	removed, err := json.Marshal(outcome.Removed)
	if err != nil {
		return fmt.Errorf("failed to marshal removed: %w", err)
	}
	deferred, err := json.Marshal(outcome.Deferred)
	if err != nil {
		return fmt.Errorf("failed to marshal deferred: %w", err)
	}

	payload, err := json.Marshal(events.SessionFinalizedPayload{
		Conversation: conversation,
		Ranking:      toOutcomeItems(outcome.Ranking),
		Removed:      toOutcomeItems(outcome.Removed),
		Deferred:     toOutcomeItems(outcome.Deferred),
		Trigger:      trigger,
		FinalizedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal SessionFinalized payload: %w", err)
	}

	return sqlutil.Run(ctx, r.db,
		func(tx *sql.Tx) *Queries { return New(tx) },
		func(q *Queries) error {
			if err := q.UpsertOutcome(ctx, UpsertOutcomeParams{
				Conversation: conversation,
				Ranking:      ranking,
				Removed:      removed,
				Deferred:     deferred,
				Trigger:      trigger,
			}); err != nil {
				return fmt.Errorf("failed to upsert outcome: %w", err)
			}
			if err := q.InsertOutboxEvent(ctx, InsertOutboxEventParams{
				ID:           uuid.New(),
				Conversation: conversation,
				EventType:    EventTypeSessionFinalized,
				Payload:      pqtype.NullRawMessage{RawMessage: payload, Valid: true},
			}); err != nil {
				return fmt.Errorf("failed to insert SessionFinalized outbox event: %w", err)
			}
			return nil
		})
}

// RecordSessionStarted enqueues a SessionStarted outbox event. Lifecycle
// events carry no outcome row, so a single insert outside a tx suffices.
func (r *Repository) RecordSessionStarted(ctx context.Context, conversation string, itemCount int) error {
	payload, err := json.Marshal(events.SessionStartedPayload{
		Conversation: conversation,
		ItemCount:    itemCount,
		StartedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal SessionStarted payload: %w", err)
	}
	return r.insertEvent(ctx, conversation, EventTypeSessionStarted, payload)
}

// RecordTweakReverted enqueues a TweakReverted outbox event.
func (r *Repository) RecordTweakReverted(ctx context.Context, conversation string, reason string) error {
	payload, err := json.Marshal(events.TweakRevertedPayload{
		Conversation: conversation,
		Reason:       reason,
		RevertedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal TweakReverted payload: %w", err)
	}
	return r.insertEvent(ctx, conversation, EventTypeTweakReverted, payload)
}

func (r *Repository) insertEvent(ctx context.Context, conversation, eventType string, payload []byte) error {
	return New(r.db).InsertOutboxEvent(ctx, InsertOutboxEventParams{
		ID:           uuid.New(),
		Conversation: conversation,
		EventType:    eventType,
		Payload:      pqtype.NullRawMessage{RawMessage: payload, Valid: true},
	})
}

func toOutcomeItems(items []models.Item) []events.OutcomeItem {
	out := make([]events.OutcomeItem, len(items))
	for i, it := range items {
		out[i] = events.OutcomeItem{ID: it.ID, Title: it.Title}
	}
	return out
}
