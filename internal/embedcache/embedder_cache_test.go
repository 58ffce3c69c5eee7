package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, userID string, texts []string, taskType string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i)}
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "test-model" }

func TestLruCacheForwardsOnlyMisses(t *testing.T) {
	inner := &fakeEmbedder{}
	embedder := WrapLruCacheToEmbedder(inner, 16, time.Minute)
	ctx := context.Background()

	first, err := embedder.EmbedBatch(ctx, "u1", []string{"aa", "bbb"}, "doc")
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Len(t, inner.calls, 1)

	// "bbb" is cached, only "cccc" reaches the inner embedder
	second, err := embedder.EmbedBatch(ctx, "u1", []string{"bbb", "cccc"}, "doc")
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Len(t, inner.calls, 2)
	require.Equal(t, []string{"cccc"}, inner.calls[1])
	require.Equal(t, first[1], second[0])
	require.Equal(t, float32(4), second[1][0])
}

func TestLruCacheKeysIncludeTaskType(t *testing.T) {
	inner := &fakeEmbedder{}
	embedder := WrapLruCacheToEmbedder(inner, 16, time.Minute)
	ctx := context.Background()

	_, err := embedder.EmbedBatch(ctx, "u1", []string{"same"}, "doc")
	require.NoError(t, err)
	_, err = embedder.EmbedBatch(ctx, "u1", []string{"same"}, "query")
	require.NoError(t, err)
	require.Len(t, inner.calls, 2)

	_, err = embedder.EmbedBatch(ctx, "u1", []string{"same"}, "doc")
	require.NoError(t, err)
	require.Len(t, inner.calls, 2)
}

func TestLruCacheReturnsCopies(t *testing.T) {
	inner := &fakeEmbedder{}
	embedder := WrapLruCacheToEmbedder(inner, 16, time.Minute)
	ctx := context.Background()

	first, err := embedder.EmbedBatch(ctx, "u1", []string{"text"}, "doc")
	require.NoError(t, err)
	first[0][0] = -100

	second, err := embedder.EmbedBatch(ctx, "u1", []string{"text"}, "doc")
	require.NoError(t, err)
	require.Equal(t, float32(4), second[0][0])
}

func TestWrapSkipsInvalidConfig(t *testing.T) {
	inner := &fakeEmbedder{}
	require.Equal(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
	require.Equal(t, inner, WrapLruCacheToEmbedder(inner, 16, 0))
}
