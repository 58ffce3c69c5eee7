package chunker

import (
	"fmt"
	"strings"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const (
	DefaultSize    = 300
	DefaultOverlap = 30
)

// Chunk is one window over the source text. Start/End are rune offsets,
// half-open, so Text == source[Start:End] in runes.
type Chunk struct {
	Seq   int
	Start int
	End   int
	Text  string
}

type Chunker struct {
	size    int
	overlap int
	stride  int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", appErr.ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", appErr.ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than size %d", appErr.ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap, stride: size - overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into fixed-size windows where consecutive chunks share
// exactly the configured overlap. The final chunk may be shorter. Offsets
// count runes, never bytes, so multi-byte characters are never cut.
// Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]Chunk, 0, (len(runes)+c.stride-1)/c.stride)
	for start := 0; start < len(runes); start += c.stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Seq:   len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
