package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 100, -5},
		{"overlap equals size", 100, 100},
		{"overlap beyond size", 100, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.size, tc.overlap)
			require.Error(t, err)
			require.ErrorIs(t, err, appErr.ErrInvalidConfig)
		})
	}
}

func TestSplitEmpty(t *testing.T) {
	c, err := New(DefaultSize, DefaultOverlap)
	require.NoError(t, err)
	require.Empty(t, c.Split(""))
	require.Empty(t, c.Split("   \n\t  "))
}

func TestSplitShortText(t *testing.T) {
	c, err := New(300, 30)
	require.NoError(t, err)

	chunks := c.Split("hello world")
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Seq)
	require.Equal(t, 0, chunks[0].Start)
	require.Equal(t, 11, chunks[0].End)
	require.Equal(t, "hello world", chunks[0].Text)
}

func TestSplitExactSize(t *testing.T) {
	c, err := New(300, 30)
	require.NoError(t, err)

	text := strings.Repeat("a", 300)
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	require.Equal(t, text, chunks[0].Text)
}

func TestSplitOverlapAndStride(t *testing.T) {
	c, err := New(10, 3)
	require.NoError(t, err)

	text := "abcdefghijklmnopqrstuvwxyz" // 26 runes
	chunks := c.Split(text)
	require.Len(t, chunks, 4)
	require.Equal(t, "abcdefghij", chunks[0].Text)
	require.Equal(t, "hijklmnopq", chunks[1].Text)
	require.Equal(t, "opqrstuvwx", chunks[2].Text)
	require.Equal(t, "vwxyz", chunks[3].Text)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		require.Equal(t, prev.End-3, cur.Start, "consecutive chunks must share the overlap")
		require.Equal(t, prev.Text[len(prev.Text)-3:], cur.Text[:3])
	}
}

func TestSplitCoversWholeInput(t *testing.T) {
	c, err := New(10, 3)
	require.NoError(t, err)

	text := "The quick brown fox jumps over the lazy dog again and again."
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	var sb strings.Builder
	for i, ch := range chunks {
		runes := []rune(ch.Text)
		if i == 0 {
			sb.WriteString(ch.Text)
			continue
		}
		sb.WriteString(string(runes[c.Overlap():]))
	}
	require.Equal(t, text, sb.String())

	last := chunks[len(chunks)-1]
	require.Equal(t, len([]rune(text)), last.End)
}

func TestSplitRuneSafe(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	text := "日本語のテキストを分割する"
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		require.True(t, len([]rune(ch.Text)) <= 4)
		require.Equal(t, ch.End-ch.Start, len([]rune(ch.Text)))
		// every chunk must be valid UTF-8 slices of the original
		require.Contains(t, text, ch.Text)
	}
}

func TestSplitDeterministic(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("determinism matters for reingestion. ", 20)
	first := c.Split(text)
	second := c.Split(text)
	require.Equal(t, first, second)
}

func TestSplitSeqMonotonic(t *testing.T) {
	c, err := New(10, 0)
	require.NoError(t, err)

	chunks := c.Split(strings.Repeat("x", 95))
	require.Len(t, chunks, 10)
	for i, ch := range chunks {
		require.Equal(t, i, ch.Seq)
	}
	require.Equal(t, 5, chunks[9].End-chunks[9].Start)
}
