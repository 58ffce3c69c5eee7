package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/repo"
)

// ConversationSweepJob reclaims storage for turns that fell out of the
// retention window. Reads already filter by age, the sweep only deletes.
type ConversationSweepJob struct {
	turns  *repo.ConversationRepo
	window time.Duration
}

func NewConversationSweepJob(turns *repo.ConversationRepo, window time.Duration) *ConversationSweepJob {
	return &ConversationSweepJob{turns: turns, window: window}
}

func (j *ConversationSweepJob) Name() string {
	return "conversation_sweep"
}

func (j *ConversationSweepJob) Run(ctx context.Context) error {
	if j.turns == nil {
		return nil
	}
	window := j.window
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := time.Now().Add(-window).Unix()
	deleted, err := j.turns.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("expired conversation turns purged", zap.Int64("deleted", deleted))
	}
	return nil
}
