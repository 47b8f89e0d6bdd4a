package parser

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// ChunkConfig defines chunking parameters.
type ChunkConfig struct {
	// Separator is the boundary text is split on before merging.
	Separator string
	// ChunkSize is the target chunk length in characters.
	ChunkSize int
	// Overlap is the character budget shared by consecutive chunks.
	Overlap int
}

// DefaultChunkConfig splits on blank lines into 512-character chunks with a
// 50-character overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Separator: "\n\n",
		ChunkSize: 512,
		Overlap:   50,
	}
}

// Validate rejects configurations the splitter cannot honour.
func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("overlap must be in [0, %d), got %d", c.ChunkSize, c.Overlap)
	}
	return nil
}

// SplitText splits text on cfg.Separator and merges the pieces into chunks of
// at most cfg.ChunkSize characters, carrying up to cfg.Overlap characters of
// trailing pieces into the next chunk. A single piece longer than the chunk
// size is kept whole. Whitespace-only text yields no chunks.
func SplitText(text string, cfg ChunkConfig) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sep := cfg.Separator
	if sep == "" {
		sep = "\n\n"
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators([]string{sep}),
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.Overlap),
	)

	raw, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]string, 0, len(raw))
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}
