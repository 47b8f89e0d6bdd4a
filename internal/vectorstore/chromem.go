package vectorstore

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"github.com/raphaelgruber/kgforge/internal/metrics"
)

// Chromem stores vectors in an embedded chromem-go database. Embeddings are
// always supplied by the caller.
type Chromem struct {
	db      *chromem.DB
	metrics *metrics.Collector
}

// NewChromem opens a chromem database persisted under dir, or an in-memory one
// when dir is empty.
func NewChromem(dir string, compress bool, mc *metrics.Collector) (*Chromem, error) {
	if dir == "" {
		return &Chromem{db: chromem.NewDB(), metrics: mc}, nil
	}
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return &Chromem{db: db, metrics: mc}, nil
}

// precomputed is installed as the embedding func so chromem never reaches for
// its default remote embedder.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: embeddings must be precomputed")
}

func (c *Chromem) collection(name string) (*chromem.Collection, error) {
	col, err := c.db.GetOrCreateCollection(name, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}
	return col, nil
}

func (c *Chromem) Add(ctx context.Context, collection string, vectors []Vector) ([]string, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	defer c.metrics.Time(metrics.OpVectorStore)()

	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}

	docs := make([]chromem.Document, len(vectors))
	ids := make([]string, len(vectors))
	for i, v := range vectors {
		docs[i] = chromem.Document{
			ID:        v.ID,
			Content:   v.Content,
			Metadata:  stringMeta(v.Metadata),
			Embedding: v.Embedding,
		}
		ids[i] = v.ID
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}
	return ids, nil
}

func (c *Chromem) Query(ctx context.Context, collection string, embedding []float32, k int) ([]Match, error) {
	defer c.metrics.Time(metrics.OpVectorStore)()

	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}
	// chromem rejects k larger than the collection
	if n := col.Count(); k <= 0 || k > n {
		k = n
	}
	if k == 0 {
		return []Match{}, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		matches[i] = Match{ID: r.ID, Content: r.Content, Metadata: meta, Score: float64(r.Similarity)}
	}
	return matches, nil
}

// Count returns the number of vectors in collection.
func (c *Chromem) Count(collection string) int {
	col := c.db.GetCollection(collection, precomputed)
	if col == nil {
		return 0
	}
	return col.Count()
}

func stringMeta(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
