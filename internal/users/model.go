package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/renkioo/renkioo/internal/quota"
)

type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	SubscriptionTier quota.Tier `json:"subscription_tier"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
