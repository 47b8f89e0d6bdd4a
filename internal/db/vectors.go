package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/kgforge/internal/metrics"
)

// VectorRecord is one embedded chunk in a collection.
type VectorRecord struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding"`
}

// VectorMatch is a nearest-neighbour hit.
type VectorMatch struct {
	ID       string         `json:"vector_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// StoreVectors upserts records into the collection and returns their ids in
// input order.
func (c *Client) StoreVectors(ctx context.Context, collection string, records []VectorRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	defer c.metrics.Time(metrics.OpVectorStore)()

	rows := make([]map[string]any, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		rows = append(rows, map[string]any{
			"id":        r.ID,
			"content":   r.Content,
			"metadata":  meta,
			"embedding": r.Embedding,
		})
		ids = append(ids, r.ID)
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		FOR $r IN $records {
			UPSERT type::record("chunk_vector", $r.id) CONTENT {
				collection: $collection,
				content: $r.content,
				metadata: $r.metadata,
				embedding: $r.embedding
			};
		};
	`, map[string]any{"collection": collection, "records": rows})
	if err != nil {
		return nil, fmt.Errorf("store vectors: %w", wrapQueryError(err))
	}
	return ids, nil
}

// SearchVectors returns the k records of the collection closest to embedding.
func (c *Client) SearchVectors(ctx context.Context, collection string, embedding []float32, k int) ([]VectorMatch, error) {
	if k <= 0 {
		k = 10
	}
	defer c.metrics.Time(metrics.OpVectorStore)()

	// HNSW with ef=40
	sql := fmt.Sprintf(`
		SELECT meta::id(id) AS vector_id, content, metadata,
			vector::similarity::cosine(embedding, $emb) AS score
		FROM chunk_vector
		WHERE collection = $collection AND embedding <|%d,40|> $emb
		ORDER BY score DESC
	`, k)

	results, err := surrealdb.Query[[]VectorMatch](ctx, c.db, sql, map[string]any{
		"collection": collection,
		"emb":        embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", wrapQueryError(err))
	}
	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []VectorMatch{}, nil
}

// CountVectors returns the number of records in the collection.
func (c *Client) CountVectors(ctx context.Context, collection string) (int, error) {
	n, err := c.count(ctx, `SELECT count() AS count FROM chunk_vector WHERE collection = $collection GROUP ALL`,
		map[string]any{"collection": collection})
	if err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}
