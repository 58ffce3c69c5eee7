package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EmbedResult carries vectors in input order plus the token usage the
// backend reported. Tokens is 0 when the backend does not report usage.
type EmbedResult struct {
	Vectors [][]float32
	Tokens  int
}

// GenResult carries the completion text plus reported token usage.
// Token counts are 0 when the backend does not report usage.
type GenResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// IProvider is the raw transport to one AI backend. Implementations do a
// single round-trip per call; batching limits, retries and cost accounting
// live in Client.
type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string, maxTokens int) (*GenResult, error)
	EmbedBatch(ctx context.Context, model string, texts []string, taskType string) (*EmbedResult, error)
}

// IEmbedder is what services consume. Vector i corresponds to text i.
type IEmbedder interface {
	EmbedBatch(ctx context.Context, userID string, texts []string, taskType string) ([][]float32, error)
	ModelName() string
}

// IGenerator is what services consume for completions.
type IGenerator interface {
	Generate(ctx context.Context, userID string, prompt string) (*GenResult, error)
}

// EmbedQuery embeds a single text through e.
func EmbedQuery(ctx context.Context, e IEmbedder, userID string, text string, taskType string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, userID, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vectors))
	}
	return vectors[0], nil
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

// statusError keeps the HTTP status around so the retry layer can tell
// transient failures from permanent ones.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

func (e *statusError) HTTPStatusCode() int {
	return e.Status
}
