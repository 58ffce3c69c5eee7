package ai

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ProviderEntry struct {
	Name     string
	Provider IProvider
}

type groupProvider struct {
	items []ProviderEntry
}

// NewGroupProvider chains providers so that a failed call falls through to
// the next entry. Entries must serve the same model names, the group exists
// for alternate keys and endpoints, not for mixing models.
func NewGroupProvider(items []ProviderEntry) IProvider {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Provider
	}
	return &groupProvider{items: items}
}

func (g *groupProvider) Name() string {
	return "group"
}

func (g *groupProvider) Generate(ctx context.Context, model string, prompt string, maxTokens int) (*GenResult, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Provider == nil {
			continue
		}
		res, err := item.Provider.Generate(ctx, model, prompt, maxTokens)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logutil.GetLogger(ctx).Warn("generate failed, trying next provider",
			zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	return nil, lastErr
}

func (g *groupProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) (*EmbedResult, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Provider == nil {
			continue
		}
		res, err := item.Provider.EmbedBatch(ctx, model, texts, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logutil.GetLogger(ctx).Warn("embed failed, trying next provider",
			zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return nil, lastErr
}
