package service

import (
	"fmt"
	"strings"

	"github.com/xxxsen/docchat/internal/model"
)

const systemInstruction = `You are an assistant that answers questions about the user's documents.
For questions about document content, answer using only the document excerpts below; if the excerpts do not contain the answer, say the documents do not cover it.
For conversational questions, use the chat history.
Cite the source label of every excerpt you rely on.`

type promptInput struct {
	Question string
	Excerpts []*model.ChunkMatch
	Turns    []*model.ConversationTurn
	MaxChars int
}

// buildPrompt assembles instruction, retrieved excerpts, chat history and
// the question. When the result exceeds MaxChars the oldest turns are
// dropped first, then the lowest-similarity excerpts. The instruction and
// the question never truncate.
func buildPrompt(in promptInput) string {
	excerpts := in.Excerpts
	turns := in.Turns
	prompt := renderPrompt(in.Question, excerpts, turns)
	if in.MaxChars <= 0 {
		return prompt
	}
	for len(prompt) > in.MaxChars {
		if len(turns) > 0 {
			turns = turns[1:]
		} else if len(excerpts) > 0 {
			excerpts = excerpts[:len(excerpts)-1]
		} else {
			break
		}
		prompt = renderPrompt(in.Question, excerpts, turns)
	}
	return prompt
}

func renderPrompt(question string, excerpts []*model.ChunkMatch, turns []*model.ConversationTurn) string {
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\nDocument excerpts:\n")
	if len(excerpts) == 0 {
		sb.WriteString("(no relevant excerpts were found in the accessible documents)\n")
	}
	for i, excerpt := range excerpts {
		fmt.Fprintf(&sb, "[Source %d: %s] %s\n", i+1, excerpt.DocumentName, excerpt.Content)
	}
	if len(turns) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, turn := range turns {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
		}
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")
	return sb.String()
}

// SourceRef points an answer back at the document a cited excerpt came
// from. One entry per document, keyed by its best-ranked excerpt.
type SourceRef struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Similarity   float64 `json:"similarity"`
}

func sourceRefs(matches []*model.ChunkMatch) []SourceRef {
	seen := make(map[string]struct{}, len(matches))
	refs := make([]SourceRef, 0, len(matches))
	for _, match := range matches {
		if _, ok := seen[match.DocumentID]; ok {
			continue
		}
		seen[match.DocumentID] = struct{}{}
		refs = append(refs, SourceRef{
			DocumentID:   match.DocumentID,
			DocumentName: match.DocumentName,
			Similarity:   match.Similarity,
		})
	}
	return refs
}
