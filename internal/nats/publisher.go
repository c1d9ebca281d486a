package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishGenerationTask hands a recorded creation to the generation workers.
func (p *Publisher) PublishGenerationTask(ctx context.Context, task GenerationTask) error {
	return p.publish(ctx, SubjectGenerationTask, task)
}

// PublishCreationEvent publishes a creation lifecycle event.
func (p *Publisher) PublishCreationEvent(ctx context.Context, event CreationEvent) error {
	return p.publish(ctx, SubjectCreationEvent, event)
}

// PublishAuditEvent publishes an admission-layer audit event.
func (p *Publisher) PublishAuditEvent(ctx context.Context, event AuditEvent) error {
	return p.publish(ctx, SubjectAuditEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
