package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/kgforge/internal/graphstore"
	"github.com/raphaelgruber/kgforge/internal/models"
)

// DefaultVectorType marks spaces created through the graph API.
const DefaultVectorType = "KnowledgeGraph"

// SpaceRequest creates a graph space.
type SpaceRequest struct {
	Name        string `json:"space_name"`
	VectorType  string `json:"vector_type,omitempty"`
	Description string `json:"description,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// ListSpaces returns the names of knowledge graph spaces. Without any graph
// space every space is listed; with none at all, or on error, the default
// space is the only entry.
func (b *GraphBuilder) ListSpaces(ctx context.Context) []string {
	fallback := []string{b.cfg.DefaultSpace}
	spaces, err := b.cfg.Spaces.ListSpaces(ctx)
	if err != nil {
		slog.Warn("failed to list knowledge spaces", "error", err)
		return fallback
	}
	if len(spaces) == 0 {
		return fallback
	}

	var graph, all []string
	for _, s := range spaces {
		all = append(all, s.Name)
		if s.IsGraph() {
			graph = append(graph, s.Name)
		}
	}
	if len(graph) > 0 {
		return graph
	}
	return all
}

// CreateSpace creates the graph in the connector, when one is configured, and
// the knowledge space record.
func (b *GraphBuilder) CreateSpace(ctx context.Context, req SpaceRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: space name is required", ErrInvalidRequest)
	}
	if req.VectorType == "" {
		req.VectorType = DefaultVectorType
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}

	if b.cfg.Connector != nil {
		got, err := graphstore.EnsureSpace(ctx, b.cfg.Connector, name)
		if err != nil {
			return fmt.Errorf("create graph space %s: %w", name, err)
		}
		if got != name {
			return fmt.Errorf("create graph space %s: %w", name, errors.New("connector fell back to the default space"))
		}
	} else {
		slog.Warn("no graph connector configured, creating space record only", "space", name)
	}

	err := b.cfg.Spaces.CreateSpace(ctx, &models.KnowledgeSpace{
		Name:        name,
		VectorType:  req.VectorType,
		Description: req.Description,
		Owner:       req.UserID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create knowledge space %s: %w", name, err)
	}
	slog.Info("space created", "space", name, "vector_type", req.VectorType)
	return nil
}
