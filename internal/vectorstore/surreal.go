package vectorstore

import (
	"context"

	"github.com/raphaelgruber/kgforge/internal/db"
)

// SurrealClient is the part of the SurrealDB client the backend needs.
type SurrealClient interface {
	StoreVectors(ctx context.Context, collection string, records []db.VectorRecord) ([]string, error)
	SearchVectors(ctx context.Context, collection string, embedding []float32, k int) ([]db.VectorMatch, error)
}

// Surreal stores vectors in the chunk_vector table, indexed with HNSW.
type Surreal struct {
	client SurrealClient
}

// NewSurreal wraps a SurrealDB client.
func NewSurreal(client SurrealClient) *Surreal {
	return &Surreal{client: client}
}

func (s *Surreal) Add(ctx context.Context, collection string, vectors []Vector) ([]string, error) {
	records := make([]db.VectorRecord, len(vectors))
	for i, v := range vectors {
		records[i] = db.VectorRecord{ID: v.ID, Content: v.Content, Metadata: v.Metadata, Embedding: v.Embedding}
	}
	return s.client.StoreVectors(ctx, collection, records)
}

func (s *Surreal) Query(ctx context.Context, collection string, embedding []float32, k int) ([]Match, error) {
	hits, err := s.client.SearchVectors(ctx, collection, embedding, k)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match(h)
	}
	return matches, nil
}
