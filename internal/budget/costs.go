package budget

import "unicode/utf8"

type CostKind string

const (
	CostEmbedding  CostKind = "embedding"
	CostChatInput  CostKind = "chat_input"
	CostChatOutput CostKind = "chat_output"
)

// Costs are dollars per 1000 tokens, per kind.
type Costs struct {
	Embedding  float64
	ChatInput  float64
	ChatOutput float64
}

func (c Costs) rate(kind CostKind) float64 {
	switch kind {
	case CostEmbedding:
		return c.Embedding
	case CostChatInput:
		return c.ChatInput
	case CostChatOutput:
		return c.ChatOutput
	default:
		return 0
	}
}

// Cost converts a token count into dollars for the given kind.
func (c Costs) Cost(kind CostKind, tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) / 1000.0 * c.rate(kind)
}

// EstimateTokens guesses the token count of a text before calling the
// model, using the rough four-characters-per-token heuristic. Estimates
// round up so reservations err on the safe side.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
