package ai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/budget"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type stubStore struct {
	mu   sync.Mutex
	rows map[string]*model.BudgetUsage
}

func newStubStore() *stubStore {
	return &stubStore{rows: make(map[string]*model.BudgetUsage)}
}

func (s *stubStore) row(scope, periodKey string) *model.BudgetUsage {
	key := scope + "|" + periodKey
	if s.rows[key] == nil {
		s.rows[key] = &model.BudgetUsage{Scope: scope, PeriodKey: periodKey}
	}
	return s.rows[key]
}

func (s *stubStore) TryReserve(_ context.Context, scope, periodKey string, estimate, ceiling float64, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(scope, periodKey)
	if ceiling >= 0 && row.Committed+row.Reserved+estimate > ceiling {
		return false, nil
	}
	row.Reserved += estimate
	return true, nil
}

func (s *stubStore) CommitReserved(_ context.Context, scope, periodKey string, estimate, actual float64, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(scope, periodKey)
	row.Reserved -= estimate
	if row.Reserved < 0 {
		row.Reserved = 0
	}
	row.Committed += actual
	return nil
}

func (s *stubStore) ReleaseReserved(_ context.Context, scope, periodKey string, estimate float64, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(scope, periodKey)
	row.Reserved -= estimate
	if row.Reserved < 0 {
		row.Reserved = 0
	}
	return nil
}

func (s *stubStore) Get(_ context.Context, scope, periodKey string) (*model.BudgetUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(scope, periodKey)
	copied := *row
	return &copied, nil
}

type fakeProvider struct {
	mu      sync.Mutex
	batches [][]string
	embedFn func(texts []string) (*EmbedResult, error)
	genFn   func(prompt string, maxTokens int) (*GenResult, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, model string, prompt string, maxTokens int) (*GenResult, error) {
	return f.genFn(prompt, maxTokens)
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) (*EmbedResult, error) {
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()
	return f.embedFn(texts)
}

func vecFor(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(len(text) + i)
	}
	return vec
}

func echoEmbed(dim int) func(texts []string) (*EmbedResult, error) {
	return func(texts []string) (*EmbedResult, error) {
		res := &EmbedResult{}
		for _, text := range texts {
			res.Vectors = append(res.Vectors, vecFor(text, dim))
			res.Tokens += len(text)
		}
		return res, nil
	}
}

func newTestClient(provider IProvider, store budget.Store, userCeiling float64, cfg ClientConfig) (*Client, *budget.Ledger) {
	ledger := budget.NewLedger(store, budget.Config{
		Period:        "total",
		UserCeiling:   userCeiling,
		GlobalCeiling: -1,
		Costs:         budget.Costs{Embedding: 0.001, ChatInput: 0.002, ChatOutput: 0.004},
	})
	if cfg.ChatModel == "" {
		cfg.ChatModel = "chat-model"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "embed-model"
	}
	client := NewClient(provider, ledger, nil, testPolicy(2), cfg)
	return client, ledger
}

func TestEmbedBatchSplitsAndPreservesOrder(t *testing.T) {
	const dim = 3
	provider := &fakeProvider{embedFn: echoEmbed(dim)}
	client, _ := newTestClient(provider, newStubStore(), -1, ClientConfig{EmbedDim: dim, MaxBatch: 2})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := client.EmbedBatch(context.Background(), "u1", texts, "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		require.Equal(t, vecFor(text, dim), vectors[i])
	}
	require.Len(t, provider.batches, 3)
	require.Len(t, provider.batches[0], 2)
	require.Len(t, provider.batches[1], 2)
	require.Len(t, provider.batches[2], 1)
}

func TestEmbedBatchCommitsReportedTokens(t *testing.T) {
	const dim = 2
	provider := &fakeProvider{embedFn: echoEmbed(dim)}
	client, ledger := newTestClient(provider, newStubStore(), -1, ClientConfig{EmbedDim: dim})

	_, err := client.EmbedBatch(context.Background(), "u1", []string{"aaaa", "bbbb"}, "")
	require.NoError(t, err)

	// echoEmbed reports one token per character, 8 tokens at 0.001/1k
	status, err := ledger.Status(context.Background(), "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.000008, status.User.Committed, 1e-12)
	require.InDelta(t, 0.0, status.User.Reserved, 1e-12)
}

func TestEmbedBatchDeniedBeforeProviderCall(t *testing.T) {
	provider := &fakeProvider{embedFn: echoEmbed(2)}
	client, _ := newTestClient(provider, newStubStore(), 0, ClientConfig{EmbedDim: 2})

	_, err := client.EmbedBatch(context.Background(), "u1", []string{"hello"}, "")
	require.ErrorIs(t, err, appErr.ErrBudgetExceeded)
	require.Empty(t, provider.batches)
}

func TestEmbedBatchExhaustedRetriesSurfaceUnavailable(t *testing.T) {
	provider := &fakeProvider{embedFn: func(texts []string) (*EmbedResult, error) {
		return nil, &statusError{Status: 503, Body: "overloaded"}
	}}
	client, ledger := newTestClient(provider, newStubStore(), -1, ClientConfig{EmbedDim: 2})

	_, err := client.EmbedBatch(context.Background(), "u1", []string{"hello"}, "")
	require.ErrorIs(t, err, appErr.ErrEmbeddingUnavailable)
	require.Len(t, provider.batches, 2)

	// nothing ran to completion, so nothing stays committed or reserved
	status, err := ledger.Status(context.Background(), "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.0, status.User.Committed, 1e-12)
	require.InDelta(t, 0.0, status.User.Reserved, 1e-12)
}

func TestEmbedBatchKeepsCostOfCompletedBatches(t *testing.T) {
	const dim = 2
	var calls int
	provider := &fakeProvider{embedFn: func(texts []string) (*EmbedResult, error) {
		calls++
		if calls > 1 {
			return nil, &statusError{Status: 400, Body: "bad request"}
		}
		return echoEmbed(dim)(texts)
	}}
	client, ledger := newTestClient(provider, newStubStore(), -1, ClientConfig{EmbedDim: dim, MaxBatch: 1})

	_, err := client.EmbedBatch(context.Background(), "u1", []string{"aaaa", "bbbb"}, "")
	require.ErrorIs(t, err, appErr.ErrEmbeddingUnavailable)

	// the first batch was billed for its 4 tokens, the failed one was not
	status, err := ledger.Status(context.Background(), "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.000004, status.User.Committed, 1e-12)
	require.InDelta(t, 0.0, status.User.Reserved, 1e-12)
}

func TestEmbedBatchRejectsWrongDimension(t *testing.T) {
	provider := &fakeProvider{embedFn: echoEmbed(4)}
	client, _ := newTestClient(provider, newStubStore(), -1, ClientConfig{EmbedDim: 8})

	_, err := client.EmbedBatch(context.Background(), "u1", []string{"hello"}, "")
	require.ErrorIs(t, err, appErr.ErrEmbeddingUnavailable)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	provider := &fakeProvider{embedFn: echoEmbed(2)}
	client, _ := newTestClient(provider, newStubStore(), -1, ClientConfig{EmbedDim: 2})

	vectors, err := client.EmbedBatch(context.Background(), "u1", nil, "")
	require.NoError(t, err)
	require.Empty(t, vectors)
	require.Empty(t, provider.batches)
}

func TestGenerateCommitsActualUsage(t *testing.T) {
	provider := &fakeProvider{genFn: func(prompt string, maxTokens int) (*GenResult, error) {
		return &GenResult{Text: "answer", InputTokens: 1000, OutputTokens: 500}, nil
	}}
	client, ledger := newTestClient(provider, newStubStore(), -1, ClientConfig{MaxTokens: 500})

	res, err := client.Generate(context.Background(), "u1", "question")
	require.NoError(t, err)
	require.Equal(t, "answer", res.Text)
	require.Equal(t, 1000, res.InputTokens)
	require.Equal(t, 500, res.OutputTokens)

	// 1000 in at 0.002/1k plus 500 out at 0.004/1k
	status, err := ledger.Status(context.Background(), "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.004, status.User.Committed, 1e-12)
	require.InDelta(t, 0.0, status.User.Reserved, 1e-12)
}

func TestGenerateFailureReleasesReservation(t *testing.T) {
	provider := &fakeProvider{genFn: func(prompt string, maxTokens int) (*GenResult, error) {
		return nil, &statusError{Status: 500, Body: "boom"}
	}}
	client, ledger := newTestClient(provider, newStubStore(), -1, ClientConfig{MaxTokens: 100})

	_, err := client.Generate(context.Background(), "u1", "question")
	require.ErrorIs(t, err, appErr.ErrCompletionUnavailable)

	status, err := ledger.Status(context.Background(), "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.0, status.User.Committed, 1e-12)
	require.InDelta(t, 0.0, status.User.Reserved, 1e-12)
}

func TestGenerateDeniedBeforeProviderCall(t *testing.T) {
	called := false
	provider := &fakeProvider{genFn: func(prompt string, maxTokens int) (*GenResult, error) {
		called = true
		return &GenResult{Text: "answer"}, nil
	}}
	client, _ := newTestClient(provider, newStubStore(), 0.0000001, ClientConfig{MaxTokens: 500})

	_, err := client.Generate(context.Background(), "u1", "a rather long question that needs tokens")
	require.ErrorIs(t, err, appErr.ErrBudgetExceeded)
	require.False(t, called)
}

func TestGenerateFallsBackToEstimatedUsage(t *testing.T) {
	provider := &fakeProvider{genFn: func(prompt string, maxTokens int) (*GenResult, error) {
		return &GenResult{Text: "12345678"}, nil
	}}
	client, ledger := newTestClient(provider, newStubStore(), -1, ClientConfig{MaxTokens: 100})

	res, err := client.Generate(context.Background(), "u1", "abcdefgh")
	require.NoError(t, err)
	require.Equal(t, 2, res.InputTokens)
	require.Equal(t, 2, res.OutputTokens)

	status, err := ledger.Status(context.Background(), "u1")
	require.NoError(t, err)
	require.Greater(t, status.User.Committed, 0.0)
}

func TestGenerateHonorsCallTimeoutPerAttempt(t *testing.T) {
	var calls int
	provider := &fakeProvider{genFn: func(prompt string, maxTokens int) (*GenResult, error) {
		calls++
		if calls == 1 {
			return nil, context.DeadlineExceeded
		}
		return &GenResult{Text: "late answer"}, nil
	}}
	client, _ := newTestClient(provider, newStubStore(), -1, ClientConfig{MaxTokens: 100, CallTimeout: time.Second})

	res, err := client.Generate(context.Background(), "u1", "question")
	require.NoError(t, err)
	require.Equal(t, "late answer", res.Text)
	require.Equal(t, 2, calls)
}
