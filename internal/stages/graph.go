package stages

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/kgforge/internal/graphstore"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
)

// GraphImport upserts triples into the run's graph space.
type GraphImport struct {
	Connector graphstore.Connector
	// DefaultSpace is used when the run did not publish a space.
	DefaultSpace string
	Reporter     Reporter
}

func (s *GraphImport) Name() string { return StageGraphImport }

// Execute returns the number of triples imported. A triple whose statements
// fail is logged and skipped.
func (s *GraphImport) Execute(ctx context.Context, triples []models.Triple, shared *pipeline.Shared) (int, error) {
	if s.Connector == nil {
		return 0, graphstore.ErrNoConnector
	}
	if len(triples) == 0 {
		return 0, nil
	}
	report(ctx, s.Reporter, shared, ProgressImporting, "importing graph")

	fallback := s.DefaultSpace
	if fallback == "" {
		fallback = graphstore.DefaultSpace
	}
	requested := shared.StringOr(KeyGraphSpace, fallback)
	space, err := graphstore.EnsureSpace(ctx, s.Connector, requested)
	if err != nil {
		slog.Warn("failed to check or create graph space, using default", "space", requested, "error", err)
	}

	restore := graphstore.UseSpace(s.Connector, space)
	defer restore()

	count := 0
	for _, t := range triples {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := s.importTriple(ctx, t); err != nil {
			slog.Warn("failed to import triple", "triple", t.String(), "space", space, "error", err)
			continue
		}
		count++
	}
	slog.Info("imported triples", "space", space, "imported", count, "total", len(triples))
	return count, nil
}

func (s *GraphImport) importTriple(ctx context.Context, t models.Triple) error {
	for _, stmt := range graphstore.UpsertTriple(t) {
		if _, err := s.Connector.Run(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
