// Package vectorstore persists embedded chunks. Backends are selected per
// knowledge space by its vector type.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Backend names.
const (
	TypeChroma  = "chroma"
	TypeSurreal = "surreal"
)

// ErrNoBackend is returned when neither the requested nor the default backend
// is registered.
var ErrNoBackend = errors.New("no vector backend")

// Vector is an embedded chunk ready to be stored.
type Vector struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Match is a similarity search hit.
type Match struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Store is a vector backend. Collections are created on first write.
type Store interface {
	// Add stores vectors in one batch and returns their ids in input order.
	Add(ctx context.Context, collection string, vectors []Vector) ([]string, error)
	// Query returns up to k vectors of the collection nearest to embedding.
	Query(ctx context.Context, collection string, embedding []float32, k int) ([]Match, error)
}

// Registry maps vector types to backends. Unknown types resolve to the
// fallback backend.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Store
	fallback string
}

// NewRegistry creates an empty registry that falls back to vectorType.
func NewRegistry(fallback string) *Registry {
	return &Registry{
		backends: make(map[string]Store),
		fallback: normalize(fallback),
	}
}

// Register adds or replaces the backend for vectorType.
func (r *Registry) Register(vectorType string, s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[normalize(vectorType)] = s
}

// Resolve returns the backend for vectorType.
func (r *Registry) Resolve(vectorType string) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.backends[normalize(vectorType)]; ok {
		return s, nil
	}
	if s, ok := r.backends[r.fallback]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w for %q", ErrNoBackend, vectorType)
}

// Types lists the registered vector types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.backends))
	for t := range r.backends {
		types = append(types, t)
	}
	return types
}

func normalize(vectorType string) string {
	t := strings.ToLower(strings.TrimSpace(vectorType))
	switch t {
	case "chromem", "chromadb", "chroma":
		return TypeChroma
	case "surrealdb", "surreal":
		return TypeSurreal
	}
	return t
}
