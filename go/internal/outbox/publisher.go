package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MockPublisher is a simple in-memory publisher for development/testing
type MockPublisher struct {
	logger *slog.Logger
}

func NewMockPublisher(logger *slog.Logger) *MockPublisher {
	return &MockPublisher{logger: logger}
}

func (p *MockPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.Info("publishing event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType),
		slog.String("conversation", event.Conversation))
	return nil
}

// JetStreamPublisher publishes events to NATS JetStream
type JetStreamPublisher struct {
	js            jetstream.JetStream
	subjectPrefix string
	logger        *slog.Logger
}

// NewJetStreamPublisher creates a publisher on top of an existing NATS
// connection. Events land on "<prefix>.<EventType>".
func NewJetStreamPublisher(nc *nats.Conn, subjectPrefix string, logger *slog.Logger) (*JetStreamPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &JetStreamPublisher{
		js:            js,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event Event) error {
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, event.EventType)

	// Create the message envelope
	envelope := map[string]interface{}{
		"eventId":      event.ID.String(),
		"eventType":    event.EventType,
		"conversation": event.Conversation,
		"timestamp":    event.CreatedAt,
		"payload":      json.RawMessage(event.Payload),
	}

	messageBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, messageBytes); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published event",
		slog.String("subject", subject),
		slog.String("event_id", event.ID.String()),
		slog.Int("size", len(messageBytes)))

	return nil
}
