package creations

import (
	"time"

	"github.com/google/uuid"

	"github.com/renkioo/renkioo/internal/quota"
)

// CreationStatus tracks a creation through the generation pipeline.
type CreationStatus string

const (
	StatusPending   CreationStatus = "pending"
	StatusCompleted CreationStatus = "completed"
	StatusFailed    CreationStatus = "failed"
)

// Creation is one admitted, recorded AI action. Inserting the row is what
// debits the user's token budget; a creation that was never persisted never
// consumed anything.
type Creation struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Kind      quota.ActionKind `json:"kind"`
	Status    CreationStatus   `json:"status"`
	Title     string           `json:"title,omitempty"`
	Prompt    string           `json:"prompt,omitempty"`
	ImageRef  string           `json:"image_ref,omitempty"`
	OutputRef string           `json:"output_ref,omitempty"`
	CostPaid  int              `json:"cost_paid"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ListParams bounds creation listings.
type ListParams struct {
	Kind     string
	Page     int
	PageSize int
}

func DefaultListParams() ListParams {
	return ListParams{Page: 1, PageSize: 20}
}
