package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is the database handle queries run against: a *sql.DB or a *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries runs ledger SQL against a database handle.
type Queries struct {
	db DBTX
}

// New creates ledger queries bound to the given handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertOutcome = `
INSERT INTO ranking_outcomes (conversation, ranking, removed, deferred, trigger, confirmed_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (conversation) DO UPDATE SET
    ranking = EXCLUDED.ranking,
    removed = EXCLUDED.removed,
    deferred = EXCLUDED.deferred,
    trigger = EXCLUDED.trigger,
    confirmed_at = EXCLUDED.confirmed_at
`

// UpsertOutcomeParams are the column values for one finalized outcome.
type UpsertOutcomeParams struct {
	Conversation string
	Ranking      json.RawMessage
	Removed      json.RawMessage
	Deferred     json.RawMessage
	Trigger      string
}

// UpsertOutcome records the outcome for a conversation, overwriting any
// previous one.
func (q *Queries) UpsertOutcome(ctx context.Context, arg UpsertOutcomeParams) error {
	_, err := q.db.ExecContext(ctx, upsertOutcome,
		arg.Conversation,
		[]byte(arg.Ranking),
		[]byte(arg.Removed),
		[]byte(arg.Deferred),
		arg.Trigger,
	)
	return err
}

const insertOutboxEvent = `
INSERT INTO ranking_outbox (id, conversation, event_type, payload)
VALUES ($1, $2, $3, $4)
`

// InsertOutboxEventParams are the column values for one outbox event.
type InsertOutboxEventParams struct {
	ID           uuid.UUID
	Conversation string
	EventType    string
	Payload      pqtype.NullRawMessage
}

// InsertOutboxEvent enqueues a domain event for the outbox relay.
func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.ExecContext(ctx, insertOutboxEvent,
		arg.ID,
		arg.Conversation,
		arg.EventType,
		arg.Payload,
	)
	return err
}

// OutboxEventRow is the database row for an outbox event.
type OutboxEventRow struct {
	ID           uuid.UUID
	Conversation string
	EventType    string
	Payload      pqtype.NullRawMessage
	CreatedAt    time.Time
	SentAt       sql.NullTime
}

const fetchOutboxByID = `
SELECT id, conversation, event_type, payload, created_at, sent_at
FROM ranking_outbox
WHERE id = $1
`

// FetchOutboxByID returns a single outbox event.
func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (OutboxEventRow, error) {
	var row OutboxEventRow
	err := q.db.QueryRowContext(ctx, fetchOutboxByID, id).Scan(
		&row.ID,
		&row.Conversation,
		&row.EventType,
		&row.Payload,
		&row.CreatedAt,
		&row.SentAt,
	)
	return row, err
}

const fetchUnsentOutbox = `
SELECT id, conversation, event_type, payload, created_at, sent_at
FROM ranking_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1
`

// FetchUnsentOutbox returns unpublished outbox events, oldest first.
func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEventRow, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxEventRow
	for rows.Next() {
		var row OutboxEventRow
		if err := rows.Scan(
			&row.ID,
			&row.Conversation,
			&row.EventType,
			&row.Payload,
			&row.CreatedAt,
			&row.SentAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const markOutboxSent = `
UPDATE ranking_outbox
SET sent_at = now()
WHERE id = $1
`

// MarkOutboxSent stamps an outbox event as published.
func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markOutboxSent, id)
	return err
}
