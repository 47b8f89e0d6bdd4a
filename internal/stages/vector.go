package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/kgforge/internal/embedding"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/parser"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
	"github.com/raphaelgruber/kgforge/internal/store"
	"github.com/raphaelgruber/kgforge/internal/vectorstore"
)

// Chunking splits documents into overlapping chunks.
type Chunking struct {
	Config parser.ChunkConfig
}

func (s *Chunking) Name() string { return StageChunking }

func (s *Chunking) Execute(_ context.Context, docs []models.Document, _ *pipeline.Shared) ([]models.Chunk, error) {
	chunks := []models.Chunk{}
	for _, doc := range docs {
		if doc.Content == "" {
			continue
		}
		texts, err := parser.SplitText(doc.Content, s.Config)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.Name(), err)
		}
		for i, text := range texts {
			meta := map[string]any{
				models.MetaSource:     doc.Source(),
				models.MetaDocName:    doc.Name(),
				models.MetaChunkIndex: i,
			}
			if id, ok := doc.Metadata[models.MetaDocumentID]; ok {
				meta[models.MetaDocumentID] = id
			}
			chunks = append(chunks, models.Chunk{
				Content:  text,
				Source:   doc.Source(),
				DocName:  doc.Name(),
				Index:    i,
				Metadata: meta,
			})
		}
	}
	slog.Info("chunked documents", "documents", len(docs), "chunks", len(chunks))
	return chunks, nil
}

// Embedding attaches a vector to every chunk with one batch call.
type Embedding struct {
	// Embedder is typically an *embedding.Lazy so the backend is built on
	// first use.
	Embedder embedding.Embedder
	Reporter Reporter
}

func (s *Embedding) Name() string { return StageEmbedding }

func (s *Embedding) Execute(ctx context.Context, chunks []models.Chunk, shared *pipeline.Shared) ([]models.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	report(ctx, s.Reporter, shared, ProgressExtracting, "embedding chunks")

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	model := s.Embedder.Model()
	out := make([]models.Chunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		out[i].Embedding = vectors[i]
		meta := maps.Clone(out[i].Metadata)
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta[models.MetaEmbedModel] = model
		out[i].Metadata = meta
	}
	slog.Info("embedded chunks", "chunks", len(out), "model", model, "dimension", s.Embedder.Dimension())
	return out, nil
}

// VectorStore writes embedded chunks to the backend of the run's knowledge
// space, then records chunk metadata.
type VectorStore struct {
	Spaces   store.SpaceStore
	Backends *vectorstore.Registry
}

func (s *VectorStore) Name() string { return StageVectorStore }

// Execute returns the number of vectors stored. An unresolvable space stores
// nothing and is not an error.
func (s *VectorStore) Execute(ctx context.Context, chunks []models.Chunk, shared *pipeline.Shared) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	name := shared.StringOr(KeyGraphSpace, "")
	if name == "" {
		slog.Error("no graph space in run context, skipping vector store")
		return 0, nil
	}
	space, err := s.Spaces.GetSpace(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Error("knowledge space not found, skipping vector store", "space", name)
		} else {
			slog.Error("failed to load knowledge space, skipping vector store", "space", name, "error", err)
		}
		return 0, nil
	}
	backend, err := s.Backends.Resolve(space.VectorType)
	if err != nil {
		slog.Error("no vector backend for space", "space", name, "vector_type", space.VectorType, "error", err)
		return 0, nil
	}

	vectors := make([]vectorstore.Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = vectorstore.Vector{
			ID:        uuid.NewString(),
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: c.Embedding,
		}
	}
	ids, err := backend.Add(ctx, space.Name, vectors)
	if err != nil {
		return 0, fmt.Errorf("store vectors in %s: %w", space.Name, err)
	}

	now := time.Now().UTC()
	records := make([]models.DocumentChunk, len(chunks))
	for i, c := range chunks {
		docID, _ := c.Metadata[models.MetaDocumentID].(string)
		records[i] = models.DocumentChunk{
			ID:         uuid.NewString(),
			Space:      space.Name,
			DocName:    c.DocName,
			DocumentID: docID,
			Content:    c.Content,
			Source:     c.Source,
			ChunkIndex: c.Index,
			VectorID:   vectors[i].ID,
			Metadata:   c.Metadata,
			CreatedAt:  now,
		}
	}
	if err := s.Spaces.SaveChunks(ctx, records); err != nil {
		return 0, fmt.Errorf("save chunk metadata: %w", err)
	}

	slog.Info("stored vectors", "space", space.Name, "vectors", len(ids))
	return len(ids), nil
}
