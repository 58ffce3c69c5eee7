package service

import (
	"context"
	"time"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// MemoryService keeps the sliding window of conversation turns. The window
// is enforced at read time, the sweep job only reclaims storage.
type MemoryService struct {
	turns    TurnStore
	window   time.Duration
	maxTurns int
}

func NewMemoryService(turns TurnStore, window time.Duration, maxTurns int) *MemoryService {
	return &MemoryService{turns: turns, window: window, maxTurns: maxTurns}
}

func (s *MemoryService) Append(ctx context.Context, userID, sessionID, role, content string) error {
	if role != model.TurnRoleUser && role != model.TurnRoleAssistant {
		return appErr.ErrInvalid
	}
	return s.turns.Insert(ctx, &model.ConversationTurn{
		ID:        newID(),
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Ctime:     time.Now().Unix(),
	})
}

// Recent returns the newest turns inside the window, oldest first.
func (s *MemoryService) Recent(ctx context.Context, userID, sessionID string) ([]*model.ConversationTurn, error) {
	cutoff := time.Now().Add(-s.window).Unix()
	turns, err := s.turns.ListRecent(ctx, userID, sessionID, cutoff, s.maxTurns)
	if err != nil {
		return nil, err
	}
	// the repo returns newest first
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *MemoryService) ClearSession(ctx context.Context, userID, sessionID string) (int64, error) {
	return s.turns.DeleteBySession(ctx, userID, sessionID)
}

// PurgeExpired drops turns older than the window across all sessions.
func (s *MemoryService) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.window).Unix()
	return s.turns.DeleteBefore(ctx, cutoff)
}
