package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/smukkama/pvsite-server/internal/metrics"
	"github.com/smukkama/pvsite-server/internal/protocol"
)

// Sender is the subset of a Kafka producer the publisher needs
type Sender interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Publisher writes access-denied events to the audit topic
type Publisher struct {
	sender Sender
	logger *slog.Logger
}

// NewPublisher creates a new audit publisher
func NewPublisher(sender Sender, logger *slog.Logger) *Publisher {
	return &Publisher{sender: sender, logger: logger}
}

// AccessDenied publishes a denial keyed by the caller's email
func (p *Publisher) AccessDenied(ctx context.Context, event *protocol.AccessDeniedEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	data, err := protocol.EncodeAccessDeniedEvent(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	if err := p.sender.Publish(ctx, event.Email, data); err != nil {
		return fmt.Errorf("failed to publish audit event %s: %w", event.EventID, err)
	}

	p.logger.Debug("published audit event", "event_id", event.EventID, "type", event.Type)
	return nil
}

// Handle decodes one consumed audit message and logs it
func Handle(logger *slog.Logger, value []byte) (*protocol.AccessDeniedEvent, error) {
	event, err := protocol.DecodeAccessDeniedEvent(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audit event: %w", err)
	}

	metrics.AuditEventsConsumed.Inc()
	logger.Info("access denied",
		"event_id", event.EventID,
		"type", event.Type,
		"email", event.Email,
		"denied_sites", event.DeniedSites,
		"entitled_sites", event.EntitledSites,
		"occurred_at", event.OccurredAt,
	)
	return event, nil
}
