package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/model"
)

func promptMatches(names ...string) []*model.ChunkMatch {
	matches := make([]*model.ChunkMatch, 0, len(names))
	for i, name := range names {
		matches = append(matches, &model.ChunkMatch{
			ChunkID:      name,
			DocumentID:   "doc-" + name,
			DocumentName: name,
			Content:      strings.Repeat("x", 80),
			Similarity:   1.0 - float64(i)*0.1,
		})
	}
	return matches
}

func promptTurns(contents ...string) []*model.ConversationTurn {
	turns := make([]*model.ConversationTurn, 0, len(contents))
	for i, content := range contents {
		role := model.TurnRoleUser
		if i%2 == 1 {
			role = model.TurnRoleAssistant
		}
		turns = append(turns, &model.ConversationTurn{Role: role, Content: content})
	}
	return turns
}

func TestBuildPromptLayout(t *testing.T) {
	prompt := buildPrompt(promptInput{
		Question: "what now?",
		Excerpts: promptMatches("alpha", "beta"),
		Turns:    promptTurns("hi", "hello"),
	})
	require.True(t, strings.HasPrefix(prompt, systemInstruction))
	require.Contains(t, prompt, "[Source 1: alpha]")
	require.Contains(t, prompt, "[Source 2: beta]")
	require.Contains(t, prompt, "user: hi\nassistant: hello\n")
	require.True(t, strings.HasSuffix(prompt, "Question: what now?\nAnswer:"))
	// excerpts come before history, history before the question
	require.Less(t, strings.Index(prompt, "[Source 1"), strings.Index(prompt, "Conversation so far:"))
	require.Less(t, strings.Index(prompt, "Conversation so far:"), strings.Index(prompt, "Question:"))
}

func TestBuildPromptDropsOldestTurnsFirst(t *testing.T) {
	full := buildPrompt(promptInput{
		Question: "q",
		Excerpts: promptMatches("alpha"),
		Turns:    promptTurns("oldest", "middle", "newest"),
	})
	trimmed := buildPrompt(promptInput{
		Question: "q",
		Excerpts: promptMatches("alpha"),
		Turns:    promptTurns("oldest", "middle", "newest"),
		MaxChars: len(full) - 1,
	})
	require.NotContains(t, trimmed, "oldest")
	require.Contains(t, trimmed, "newest")
	require.Contains(t, trimmed, "[Source 1: alpha]", "excerpts survive while turns remain to drop")
}

func TestBuildPromptDropsWeakestExcerptsAfterTurns(t *testing.T) {
	noTurns := buildPrompt(promptInput{
		Question: "q",
		Excerpts: promptMatches("alpha", "beta", "gamma"),
	})
	trimmed := buildPrompt(promptInput{
		Question: "q",
		Excerpts: promptMatches("alpha", "beta", "gamma"),
		MaxChars: len(noTurns) - 1,
	})
	require.Contains(t, trimmed, "alpha")
	require.NotContains(t, trimmed, "gamma", "the lowest-similarity excerpt goes first")
}

func TestBuildPromptNeverDropsQuestion(t *testing.T) {
	question := "an unreasonably long question that still has to survive truncation"
	prompt := buildPrompt(promptInput{
		Question: question,
		Excerpts: promptMatches("alpha", "beta"),
		Turns:    promptTurns("a", "b"),
		MaxChars: 10,
	})
	require.Contains(t, prompt, "Question: "+question)
	require.True(t, strings.HasPrefix(prompt, systemInstruction))
	require.NotContains(t, prompt, "[Source")
}

func TestSourceRefsDedupe(t *testing.T) {
	refs := sourceRefs([]*model.ChunkMatch{
		{DocumentID: "d1", DocumentName: "one", Similarity: 0.9},
		{DocumentID: "d2", DocumentName: "two", Similarity: 0.8},
		{DocumentID: "d1", DocumentName: "one", Similarity: 0.7},
	})
	require.Len(t, refs, 2)
	require.Equal(t, "d1", refs[0].DocumentID)
	require.InDelta(t, 0.9, refs[0].Similarity, 1e-9)

	require.Empty(t, sourceRefs(nil))
}
