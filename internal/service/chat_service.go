package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/budget"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/repo"
)

type ChatConfig struct {
	TopK           int
	MaxTopK        int
	MaxPromptChars int
	EmbedTaskQuery string
}

// ChatService answers a user question from their accessible documents:
// embed the query, retrieve the closest chunks, assemble the prompt with
// the session's recent turns, complete, then record the exchange. Budget
// authorization happens inside the embedder and generator; a denial
// anywhere aborts the whole request.
type ChatService struct {
	embedder  ai.IEmbedder
	generator ai.IGenerator
	chunks    ChunkStore
	memory    *MemoryService
	ledger    *budget.Ledger
	cfg       ChatConfig
}

func NewChatService(embedder ai.IEmbedder, generator ai.IGenerator, chunks ChunkStore,
	memory *MemoryService, ledger *budget.Ledger, cfg ChatConfig) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 20
	}
	return &ChatService{
		embedder:  embedder,
		generator: generator,
		chunks:    chunks,
		memory:    memory,
		ledger:    ledger,
		cfg:       cfg,
	}
}

type ChatRequest struct {
	SessionID string
	Message   string
	TopK      int
}

type ChatResult struct {
	Answer  string         `json:"answer"`
	Sources []SourceRef    `json:"sources"`
	Usage   *budget.Status `json:"usage,omitempty"`
}

func (s *ChatService) Chat(ctx context.Context, userID string, req ChatRequest) (*ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", appErr.ErrInvalid)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", appErr.ErrInvalid)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}

	// memory snapshot before any billable work, the request answers
	// against what the session looked like when it arrived
	turns, err := s.memory.Recent(ctx, userID, req.SessionID)
	if err != nil {
		return nil, err
	}

	vector, err := ai.EmbedQuery(ctx, s.embedder, userID, message, s.cfg.EmbedTaskQuery)
	if err != nil {
		return nil, err
	}
	matches, err := s.chunks.Search(ctx, repo.SearchQuery{
		Vector:   vector,
		OwnerIDs: []string{userID},
		Public:   true,
		Model:    s.embedder.ModelName(),
		TopK:     topK,
	})
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(promptInput{
		Question: message,
		Excerpts: matches,
		Turns:    turns,
		MaxChars: s.cfg.MaxPromptChars,
	})
	res, err := s.generator.Generate(ctx, userID, prompt)
	if err != nil {
		return nil, err
	}
	// the completion cost is committed at this point; if the caller has
	// gone away, skip memory and answer delivery but keep the cost
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// once the answer exists the exchange is recorded best effort; the
	// assistant turn is only written when the user turn made it
	if err := s.memory.Append(ctx, userID, req.SessionID, model.TurnRoleUser, message); err != nil {
		logutil.GetLogger(ctx).Warn("record user turn failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	} else if err := s.memory.Append(ctx, userID, req.SessionID, model.TurnRoleAssistant, res.Text); err != nil {
		logutil.GetLogger(ctx).Warn("record assistant turn failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}

	result := &ChatResult{Answer: res.Text, Sources: sourceRefs(matches)}
	if s.ledger != nil {
		if status, err := s.ledger.Status(ctx, userID); err == nil {
			result.Usage = status
		}
	}
	return result, nil
}

func (s *ChatService) History(ctx context.Context, userID, sessionID string) ([]*model.ConversationTurn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", appErr.ErrInvalid)
	}
	return s.memory.Recent(ctx, userID, sessionID)
}

func (s *ChatService) ClearHistory(ctx context.Context, userID, sessionID string) (int64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, fmt.Errorf("%w: session_id is required", appErr.ErrInvalid)
	}
	return s.memory.ClearSession(ctx, userID, sessionID)
}
