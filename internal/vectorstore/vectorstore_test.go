package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kgforge/internal/db"
	"github.com/raphaelgruber/kgforge/internal/metrics"
)

func TestRegistryResolve(t *testing.T) {
	chroma, err := NewChromem("", false, nil)
	require.NoError(t, err)
	surreal := NewSurreal(&fakeSurreal{})

	r := NewRegistry("chroma")
	r.Register("chromem", chroma)
	r.Register("SurrealDB", surreal)

	tests := []struct {
		vectorType string
		want       Store
	}{
		{"chroma", chroma},
		{"Chroma", chroma},
		{"surreal", surreal},
		{"KnowledgeGraph", chroma},
		{"", chroma},
	}
	for _, tt := range tests {
		t.Run(tt.vectorType, func(t *testing.T) {
			got, err := r.Resolve(tt.vectorType)
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}
	assert.ElementsMatch(t, []string{TypeChroma, TypeSurreal}, r.Types())
}

func TestRegistryNoBackend(t *testing.T) {
	r := NewRegistry("chroma")
	_, err := r.Resolve("chroma")
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestChromemAddQuery(t *testing.T) {
	ctx := context.Background()
	mc := metrics.NewCollector()
	c, err := NewChromem("", false, mc)
	require.NoError(t, err)

	ids, err := c.Add(ctx, "space", []Vector{
		{ID: "a", Content: "east", Metadata: map[string]any{"chunk_index": 0}, Embedding: []float32{1, 0, 0}},
		{ID: "b", Content: "north", Metadata: map[string]any{"chunk_index": 1}, Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, 2, c.Count("space"))
	assert.Equal(t, 0, c.Count("other"))

	hits, err := c.Query(ctx, "space", []float32{0.9, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "0", hits[0].Metadata["chunk_index"])

	hits, err = c.Query(ctx, "empty", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.Equal(t, int64(3), mc.Snapshot().VectorStore.Count)
}

func TestChromemPersistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := NewChromem(dir, true, nil)
	require.NoError(t, err)
	_, err = c.Add(ctx, "space", []Vector{{ID: "a", Content: "x", Embedding: []float32{1, 0}}})
	require.NoError(t, err)

	reopened, err := NewChromem(dir, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count("space"))
}

type fakeSurreal struct {
	stored map[string][]db.VectorRecord
}

func (f *fakeSurreal) StoreVectors(_ context.Context, collection string, records []db.VectorRecord) ([]string, error) {
	if f.stored == nil {
		f.stored = make(map[string][]db.VectorRecord)
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	f.stored[collection] = append(f.stored[collection], records...)
	return ids, nil
}

func (f *fakeSurreal) SearchVectors(_ context.Context, collection string, _ []float32, k int) ([]db.VectorMatch, error) {
	var out []db.VectorMatch
	for _, r := range f.stored[collection] {
		if len(out) == k {
			break
		}
		out = append(out, db.VectorMatch{ID: r.ID, Content: r.Content, Score: 1})
	}
	return out, nil
}

func TestSurrealAdapter(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSurreal{}
	s := NewSurreal(fake)

	ids, err := s.Add(ctx, "kg", []Vector{{ID: "v1", Content: "c", Embedding: []float32{1}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, ids)
	assert.Len(t, fake.stored["kg"], 1)

	hits, err := s.Query(ctx, "kg", []float32{1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v1", hits[0].ID)
}
