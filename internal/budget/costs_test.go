package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	costs := Costs{Embedding: 0.00002, ChatInput: 0.00015, ChatOutput: 0.0006}

	require.InDelta(t, 0.00002, costs.Cost(CostEmbedding, 1000), 1e-12)
	require.InDelta(t, 0.00015, costs.Cost(CostChatInput, 1000), 1e-12)
	require.InDelta(t, 0.0006, costs.Cost(CostChatOutput, 1000), 1e-12)
	require.InDelta(t, 0.00001, costs.Cost(CostEmbedding, 500), 1e-12)
	require.Zero(t, costs.Cost(CostEmbedding, 0))
	require.Zero(t, costs.Cost(CostKind("bogus"), 1000))
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("a"))
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 2, EstimateTokens("abcde"))
	require.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
	// multi-byte runes count as characters, not bytes
	require.Equal(t, 1, EstimateTokens("日本語だ"))
}
