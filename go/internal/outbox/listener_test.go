package outbox

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/curator/go/internal/ledger"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyPublisher fails its first N publishes, then delegates.
type flakyPublisher struct {
	failures int
	calls    int
	inner    Publisher
}

func (p *flakyPublisher) Publish(ctx context.Context, event Event) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("bus unavailable")
	}
	return p.inner.Publish(ctx, event)
}

func testEvent() Event {
	return Event{
		ID:           uuid.New(),
		Conversation: "chat-42",
		EventType:    ledger.EventTypeSessionFinalized,
		Payload:      []byte(`{"conversation":"chat-42"}`),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestPublishWithRetryRecovers(t *testing.T) {
	pub := &flakyPublisher{failures: 2, inner: NewMockPublisher(slog.Default())}
	l := &Listener{
		publisher: pub,
		cfg:       ListenerConfig{MaxRetries: 3, RetryDelay: time.Millisecond},
	}

	require.NoError(t, l.publishWithRetry(context.Background(), testEvent()))
	assert.Equal(t, 3, pub.calls)
}

func TestPublishWithRetryGivesUp(t *testing.T) {
	pub := &flakyPublisher{failures: 10, inner: NewMockPublisher(slog.Default())}
	l := &Listener{
		publisher: pub,
		cfg:       ListenerConfig{MaxRetries: 2, RetryDelay: time.Millisecond},
	}

	err := l.publishWithRetry(context.Background(), testEvent())
	require.Error(t, err)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, 3, pub.calls)
}

func TestPublishWithRetryStopsOnContextCancel(t *testing.T) {
	pub := &flakyPublisher{failures: 10, inner: NewMockPublisher(slog.Default())}
	l := &Listener{
		publisher: pub,
		cfg:       ListenerConfig{MaxRetries: 5, RetryDelay: time.Minute},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.publishWithRetry(ctx, testEvent())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, pub.calls)
}

func TestRowToEvent(t *testing.T) {
	id := uuid.New()
	created := time.Now().UTC()
	sent := created.Add(time.Second)

	row := ledger.OutboxEventRow{
		ID:           id,
		Conversation: "chat-42",
		EventType:    ledger.EventTypeTweakReverted,
		Payload:      pqtype.NullRawMessage{RawMessage: []byte(`{"reason":"inactivity"}`), Valid: true},
		CreatedAt:    created,
		SentAt:       sql.NullTime{Time: sent, Valid: true},
	}

	ev := rowToEvent(row)
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, "chat-42", ev.Conversation)
	assert.Equal(t, ledger.EventTypeTweakReverted, ev.EventType)
	assert.JSONEq(t, `{"reason":"inactivity"}`, string(ev.Payload))
	require.NotNil(t, ev.SentAt)
	assert.Equal(t, sent, *ev.SentAt)

	// Null payload and sent_at map to their zero forms.
	row.Payload = pqtype.NullRawMessage{}
	row.SentAt = sql.NullTime{}
	ev = rowToEvent(row)
	assert.Nil(t, ev.Payload)
	assert.Nil(t, ev.SentAt)
}
