package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierFree, ParseTier("free"))
	assert.Equal(t, TierPro, ParseTier("pro"))
	assert.Equal(t, TierPremium, ParseTier("premium"))

	// Unknown values degrade to the most restrictive tier
	assert.Equal(t, TierFree, ParseTier(""))
	assert.Equal(t, TierFree, ParseTier("enterprise"))
}

func TestTierTokenLimit(t *testing.T) {
	limit, unlimited := TierFree.TokenLimit()
	assert.Equal(t, 50, limit)
	assert.False(t, unlimited)

	limit, unlimited = TierPro.TokenLimit()
	assert.Equal(t, 500, limit)
	assert.False(t, unlimited)

	_, unlimited = TierPremium.TokenLimit()
	assert.True(t, unlimited)
}

func TestParseActionKind(t *testing.T) {
	for _, s := range []string{"analysis", "storybook", "interactive_story", "coloring", "chat_message"} {
		kind, err := ParseActionKind(s)
		require.NoError(t, err)
		assert.Equal(t, ActionKind(s), kind)
	}

	_, err := ParseActionKind("video")
	assert.Error(t, err)

	_, err = ParseActionKind("")
	assert.Error(t, err)
}

func TestActionCost(t *testing.T) {
	assert.Equal(t, 10, ActionAnalysis.Cost())
	assert.Equal(t, 15, ActionStorybook.Cost())
	assert.Equal(t, 15, ActionInteractiveStory.Cost())
	assert.Equal(t, 8, ActionColoring.Cost())
	assert.Equal(t, 2, ActionChatMessage.Cost())
}
