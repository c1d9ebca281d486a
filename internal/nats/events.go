package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamTasks  = "RENKIOO_TASKS"
	StreamEvents = "RENKIOO_EVENTS"
)

// Subject constants.
const (
	SubjectGenerationTask = "renkioo.tasks.generate"
	SubjectCreationEvent  = "renkioo.events.creation"
	SubjectAuditEvent     = "renkioo.events.audit"
)

// GenerationTask hands an admitted, recorded creation to the generation
// workers (vision/LLM/image pipelines live outside this service).
type GenerationTask struct {
	CreationID uuid.UUID `json:"creation_id"`
	UserID     uuid.UUID `json:"user_id"`
	Kind       string    `json:"kind"`
	Prompt     string    `json:"prompt,omitempty"`
	ImageRef   string    `json:"image_ref,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
}

// CreationEvent is published on creation lifecycle changes.
type CreationEvent struct {
	CreationID uuid.UUID `json:"creation_id"`
	UserID     uuid.UUID `json:"user_id"`
	Kind       string    `json:"kind"`
	EventType  string    `json:"event_type"` // e.g., "requested", "completed", "failed"
	Timestamp  time.Time `json:"timestamp"`
}

// AuditEvent records admission-layer outcomes (quota exhaustion, rate-limit
// rejections) for compliance and abuse review.
type AuditEvent struct {
	UserID    uuid.UUID `json:"user_id,omitempty"`
	ClientKey string    `json:"client_key,omitempty"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"` // info, warn, error
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
