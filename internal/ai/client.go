package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/docchat/internal/budget"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type ClientConfig struct {
	ChatModel   string
	EmbedModel  string
	EmbedDim    int
	MaxBatch    int
	MaxTokens   int
	CallTimeout time.Duration
}

// Client layers cost accounting, rate limiting, retries and batch splitting
// on top of a raw provider. Authorization with the ledger happens before any
// request leaves the process and the real token usage is committed after.
type Client struct {
	provider IProvider
	ledger   *budget.Ledger
	limiter  *rate.Limiter
	retry    RetryPolicy
	cfg      ClientConfig
}

func NewClient(provider IProvider, ledger *budget.Ledger, limiter *rate.Limiter, retry RetryPolicy, cfg ClientConfig) *Client {
	return &Client{
		provider: provider,
		ledger:   ledger,
		limiter:  limiter,
		retry:    retry,
		cfg:      cfg,
	}
}

func (c *Client) ModelName() string {
	return c.cfg.EmbedModel
}

// EmbedBatch embeds texts in input order, splitting into provider-sized
// batches transparently. When a later batch fails the cost of the batches
// that did run stays committed, billed work does not roll back.
func (c *Client) EmbedBatch(ctx context.Context, userID string, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	costs := c.ledger.Costs()
	estTokens := 0
	for _, text := range texts {
		estTokens += budget.EstimateTokens(text)
	}
	grant, err := c.ledger.Authorize(ctx, userID, costs.Cost(budget.CostEmbedding, estTokens))
	if err != nil {
		return nil, err
	}

	batchSize := c.cfg.MaxBatch
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	vectors := make([][]float32, 0, len(texts))
	actualTokens := 0
	var callErr error
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		res, err := c.callEmbed(ctx, batch, taskType)
		if err != nil {
			callErr = err
			break
		}
		batchTokens := res.Tokens
		if batchTokens <= 0 {
			for _, text := range batch {
				batchTokens += budget.EstimateTokens(text)
			}
		}
		actualTokens += batchTokens
		vectors = append(vectors, res.Vectors...)
	}
	if err := grant.Commit(ctx, costs.Cost(budget.CostEmbedding, actualTokens)); err != nil {
		logutil.GetLogger(ctx).Error("commit embedding cost failed", zap.Error(err))
	}
	if callErr != nil {
		if errors.Is(callErr, context.Canceled) {
			return nil, callErr
		}
		return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, callErr)
	}
	if c.cfg.EmbedDim > 0 {
		for i, vec := range vectors {
			if len(vec) != c.cfg.EmbedDim {
				return nil, fmt.Errorf("%w: embedding %d has dimension %d, want %d",
					appErr.ErrEmbeddingUnavailable, i, len(vec), c.cfg.EmbedDim)
			}
		}
	}
	return vectors, nil
}

func (c *Client) callEmbed(ctx context.Context, batch []string, taskType string) (*EmbedResult, error) {
	var res *EmbedResult
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.waitLimiter(ctx); err != nil {
			return err
		}
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		r, err := c.provider.EmbedBatch(callCtx, c.cfg.EmbedModel, batch, taskType)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Generate(ctx context.Context, userID string, prompt string) (*GenResult, error) {
	costs := c.ledger.Costs()
	estTokens := budget.EstimateTokens(prompt)
	estimate := costs.Cost(budget.CostChatInput, estTokens) +
		costs.Cost(budget.CostChatOutput, c.cfg.MaxTokens)
	grant, err := c.ledger.Authorize(ctx, userID, estimate)
	if err != nil {
		return nil, err
	}

	var res *GenResult
	callErr := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.waitLimiter(ctx); err != nil {
			return err
		}
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		r, err := c.provider.Generate(callCtx, c.cfg.ChatModel, prompt, c.cfg.MaxTokens)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if callErr != nil {
		grant.Release(ctx)
		if errors.Is(callErr, context.Canceled) {
			return nil, callErr
		}
		return nil, fmt.Errorf("%w: %v", appErr.ErrCompletionUnavailable, callErr)
	}

	inTokens := res.InputTokens
	if inTokens <= 0 {
		inTokens = estTokens
	}
	outTokens := res.OutputTokens
	if outTokens <= 0 {
		outTokens = budget.EstimateTokens(res.Text)
	}
	actual := costs.Cost(budget.CostChatInput, inTokens) +
		costs.Cost(budget.CostChatOutput, outTokens)
	if err := grant.Commit(ctx, actual); err != nil {
		logutil.GetLogger(ctx).Error("commit completion cost failed", zap.Error(err))
	}
	if res.Text == "" {
		return nil, fmt.Errorf("%w: empty response", appErr.ErrCompletionUnavailable)
	}
	res.InputTokens = inTokens
	res.OutputTokens = outTokens
	return res, nil
}

func (c *Client) waitLimiter(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}
