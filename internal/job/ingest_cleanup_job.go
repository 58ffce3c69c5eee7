package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/repo"
)

const ingestCleanupBatch = 100

// IngestCleanupJob removes documents stuck in pending state, the leftovers
// of ingestions that crashed between reserving the slot and committing.
// This is the repair path for partial indexing: chunks go first, then the
// pending row, so the quota slot frees only once the index is clean.
type IngestCleanupJob struct {
	docs   *repo.DocumentRepo
	chunks *repo.ChunkRepo
	maxAge time.Duration
}

func NewIngestCleanupJob(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, maxAge time.Duration) *IngestCleanupJob {
	return &IngestCleanupJob{docs: docs, chunks: chunks, maxAge: maxAge}
}

func (j *IngestCleanupJob) Name() string {
	return "ingest_cleanup"
}

func (j *IngestCleanupJob) Run(ctx context.Context) error {
	if j.docs == nil || j.chunks == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	stale, err := j.docs.ListStalePending(ctx, cutoff, ingestCleanupBatch)
	if err != nil {
		return err
	}
	for _, doc := range stale {
		removed, err := j.chunks.DeleteByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		if err := j.docs.Remove(ctx, doc.ID); err != nil {
			return err
		}
		logutil.GetLogger(ctx).Info("stale pending document cleaned up",
			zap.String("document_id", doc.ID),
			zap.String("user_id", doc.UserID),
			zap.Int64("orphan_chunks", removed))
	}
	return nil
}
