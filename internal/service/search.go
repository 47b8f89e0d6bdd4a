package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/kgforge/internal/embedding"
	"github.com/raphaelgruber/kgforge/internal/store"
	"github.com/raphaelgruber/kgforge/internal/vectorstore"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// SearchOptions configures a chunk search.
type SearchOptions struct {
	Space string
	Query string
	Limit int
}

// SearchService finds stored chunks similar to a query within one space.
type SearchService struct {
	spaces   store.SpaceStore
	backends *vectorstore.Registry
	embedder embedding.Embedder
}

// NewSearchService creates a search service over the same backends the
// vector branch writes to.
func NewSearchService(spaces store.SpaceStore, backends *vectorstore.Registry, embedder embedding.Embedder) *SearchService {
	return &SearchService{spaces: spaces, backends: backends, embedder: embedder}
}

// Search embeds the query and returns the nearest chunks of the space.
func (s *SearchService) Search(ctx context.Context, opts SearchOptions) ([]vectorstore.Match, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	space, err := s.spaces.GetSpace(ctx, opts.Space)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("knowledge space %q: %w", opts.Space, err)
		}
		return nil, fmt.Errorf("get knowledge space: %w", err)
	}
	backend, err := s.backends.Resolve(space.VectorType)
	if err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := backend.Query(ctx, space.Name, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	return matches, nil
}
