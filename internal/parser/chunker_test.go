package parser

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_Empty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "completely empty", content: ""},
		{name: "whitespace only", content: "   \n\n\t  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := SplitText(tt.content, DefaultChunkConfig())
			require.NoError(t, err)
			assert.Empty(t, chunks)
		})
	}
}

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	chunks, err := SplitText("  Tencent was founded in 1998 in Shenzhen.  ", DefaultChunkConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"Tencent was founded in 1998 in Shenzhen."}, chunks)
}

func TestSplitText_OverlapBetweenChunks(t *testing.T) {
	var paras []string
	for i := range 12 {
		p := fmt.Sprintf("paragraph %02d ", i)
		paras = append(paras, p+strings.Repeat("x", 30-len(p)))
	}
	cfg := ChunkConfig{Separator: "\n\n", ChunkSize: 100, Overlap: 40}

	chunks, err := SplitText(strings.Join(paras, "\n\n"), cfg)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg.ChunkSize, "chunk %d too long", i)
		assert.NotEmpty(t, c)
	}
	for i := 1; i < len(chunks); i++ {
		prev := strings.Split(chunks[i-1], "\n\n")
		last := prev[len(prev)-1]
		assert.True(t, strings.HasPrefix(chunks[i], last),
			"chunk %d should start with the tail of chunk %d (%q)", i, i-1, last)
	}

	// every paragraph survives
	joined := strings.Join(chunks, "\n\n")
	for _, p := range paras {
		assert.Contains(t, joined, p)
	}
}

func TestSplitText_OversizedPieceKeptWhole(t *testing.T) {
	long := strings.Repeat("a", 300)
	chunks, err := SplitText("intro\n\n"+long+"\n\noutro", ChunkConfig{Separator: "\n\n", ChunkSize: 100, Overlap: 10})
	require.NoError(t, err)
	assert.Contains(t, chunks, long)
}

func TestSplitText_InvalidConfig(t *testing.T) {
	_, err := SplitText("text", ChunkConfig{ChunkSize: 0})
	assert.Error(t, err)

	_, err = SplitText("text", ChunkConfig{ChunkSize: 10, Overlap: 10})
	assert.Error(t, err)
}
