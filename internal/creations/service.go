package creations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/renkioo/renkioo/internal/metrics"
	rnats "github.com/renkioo/renkioo/internal/nats"
	"github.com/renkioo/renkioo/internal/quota"
)

// TaskPublisher is the subset of the NATS publisher the service needs.
type TaskPublisher interface {
	PublishGenerationTask(ctx context.Context, task rnats.GenerationTask) error
	PublishCreationEvent(ctx context.Context, event rnats.CreationEvent) error
}

// Service records admitted creations and hands them to generation workers.
type Service struct {
	repo      Repository
	publisher TaskPublisher
}

func NewService(repo Repository, publisher TaskPublisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// NewRequest carries a creation request after validation.
type NewRequest struct {
	Title    string
	Prompt   string
	ImageRef string
}

// Record persists the creation (debiting the action cost) and queues the
// generation task. Persisting is the authoritative step; the NATS hand-off is
// best-effort and a failure there leaves the creation pending for the
// reconciliation sweep the workers run.
func (s *Service) Record(ctx context.Context, userID uuid.UUID, kind quota.ActionKind, req NewRequest) (*Creation, error) {
	now := time.Now()
	c := &Creation{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Status:    StatusPending,
		Title:     req.Title,
		Prompt:    req.Prompt,
		ImageRef:  req.ImageRef,
		CostPaid:  kind.Cost(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("recording creation: %w", err)
	}
	metrics.CreationsRecordedTotal.WithLabelValues(string(kind)).Inc()

	if s.publisher != nil {
		task := rnats.GenerationTask{
			CreationID: c.ID,
			UserID:     userID,
			Kind:       string(kind),
			Prompt:     c.Prompt,
			ImageRef:   c.ImageRef,
			QueuedAt:   now.UTC(),
		}
		if err := s.publisher.PublishGenerationTask(ctx, task); err != nil {
			slog.Warn("creations: queuing generation task", "creation_id", c.ID, "error", err)
		}
		event := rnats.CreationEvent{
			CreationID: c.ID,
			UserID:     userID,
			Kind:       string(kind),
			EventType:  "requested",
			Timestamp:  now.UTC(),
		}
		if err := s.publisher.PublishCreationEvent(ctx, event); err != nil {
			slog.Debug("creations: publishing creation event", "error", err)
		}
	}

	return c, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Creation, error) {
	return s.repo.GetByID(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, params ListParams) ([]Creation, int64, error) {
	return s.repo.ListByUser(ctx, userID, params)
}
