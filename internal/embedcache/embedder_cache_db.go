package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/repo"
)

func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo *repo.EmbeddingCacheRepo
}

// EmbedBatch resolves as many texts as possible from the persistent cache
// in one query and forwards only the misses. Cache writes are best effort.
func (d *dbEmbedder) EmbedBatch(ctx context.Context, userID string, texts []string, taskType string) ([][]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	modelName := keyModelName(d.next.ModelName())
	hashes := make([]string, len(texts))
	for i, text := range texts {
		hashes[i] = contentHash(text)
	}
	cached, err := d.repo.GetBatch(ctx, modelName, taskType, hashes)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i := range texts {
		if values, ok := cached[hashes[i]]; ok {
			vectors[i] = values
			continue
		}
		missTexts = append(missTexts, texts[i])
		missIdx = append(missIdx, i)
	}
	if hits := len(texts) - len(missTexts); hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)",
			zap.String("task_type", taskType), zap.Int("hits", hits))
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := d.next.EmbedBatch(ctx, userID, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}
	now := time.Now().Unix()
	for j, idx := range missIdx {
		if err := d.repo.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: hashes[idx],
			Embedding:   fresh[j],
			Ctime:       now,
		}); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
		vectors[idx] = fresh[j]
	}
	return vectors, nil
}

func (d *dbEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}
