package quota

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier is a subscription level determining the monthly token ceiling.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// ParseTier maps a stored string to a Tier, defaulting unknown values to free.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierFree, TierPro, TierPremium:
		return Tier(s)
	default:
		return TierFree
	}
}

// TokenLimit returns the monthly token ceiling for the tier.
// Premium is unlimited; callers must check the bool before using the int.
func (t Tier) TokenLimit() (limit int, unlimited bool) {
	switch t {
	case TierFree:
		return 50, false
	case TierPro:
		return 500, false
	case TierPremium:
		return 0, true
	default:
		return 50, false
	}
}

// ActionKind identifies a token-consuming action.
type ActionKind string

const (
	ActionAnalysis         ActionKind = "analysis"
	ActionStorybook        ActionKind = "storybook"
	ActionInteractiveStory ActionKind = "interactive_story"
	ActionColoring         ActionKind = "coloring"
	ActionChatMessage      ActionKind = "chat_message"
)

// ParseActionKind validates a wire string against the known action kinds.
func ParseActionKind(s string) (ActionKind, error) {
	switch ActionKind(s) {
	case ActionAnalysis, ActionStorybook, ActionInteractiveStory, ActionColoring, ActionChatMessage:
		return ActionKind(s), nil
	default:
		return "", fmt.Errorf("unknown action kind %q", s)
	}
}

// Cost returns the token cost debited when the action is recorded.
func (a ActionKind) Cost() int {
	switch a {
	case ActionAnalysis:
		return 10
	case ActionStorybook:
		return 15
	case ActionInteractiveStory:
		return 15
	case ActionColoring:
		return 8
	case ActionChatMessage:
		return 2
	default:
		return 0
	}
}

// Record matches the user_quotas table schema: one row per user, created with
// the account. TokensUsed only grows within a billing period; the lazy reset
// zeroes it and advances QuotaResetAt by one calendar month.
type Record struct {
	UserID       uuid.UUID `json:"user_id"`
	Tier         Tier      `json:"subscription_tier"`
	TokensUsed   int       `json:"tokens_used"`
	QuotaResetAt time.Time `json:"quota_reset_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Status is the API response showing current usage against the tier ceiling.
type Status struct {
	Tier       Tier      `json:"tier"`
	TokensUsed int       `json:"tokens_used"`
	TokenLimit int       `json:"token_limit"`
	Remaining  int       `json:"remaining"`
	Unlimited  bool      `json:"unlimited"`
	ResetsAt   time.Time `json:"resets_at"`
}

// ExceededError is the expected outcome when a user's remaining budget cannot
// cover an action. It is not an infrastructure failure; callers render it as
// an upgrade prompt with the structured fields below.
type ExceededError struct {
	Action     ActionKind `json:"action"`
	Cost       int        `json:"cost"`
	TokensUsed int        `json:"tokens_used"`
	TokenLimit int        `json:"token_limit"`
	Remaining  int        `json:"remaining"`
	Tier       Tier       `json:"tier"`
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("monthly token quota exceeded: action %s costs %d, %d of %d used (%d remaining) on %s tier",
		e.Action, e.Cost, e.TokensUsed, e.TokenLimit, e.Remaining, e.Tier)
}
