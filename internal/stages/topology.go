package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/kgforge/internal/loader"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
)

// Aggregate is the join of the triple and vector branches.
func Aggregate(_ context.Context, triplets, vectors int, shared *pipeline.Shared) (Result, error) {
	slog.Info("aggregated results", "task_id", shared.StringOr(KeyTaskID, ""), "triplets", triplets, "vectors", vectors)
	return Result{TripletsCount: triplets, VectorsCount: vectors}, nil
}

// Set holds the stages both topologies are built from.
type Set struct {
	Parse       *FileParsing
	Extract     *LLMExtraction
	Mapping     *MappingExtraction
	Import      *GraphImport
	Chunk       *Chunking
	Embed       *Embedding
	StoreVector *VectorStore
}

// Topologies are the built pipelines, one per extraction strategy.
type Topologies struct {
	Text    *pipeline.Pipeline[*RunContext, Result]
	Mapping *pipeline.Pipeline[*RunContext, Result]
}

// Build wires both topologies:
//
//	text:    root -> parse -> llm_extraction -> graph_import ----\
//	                    \--> chunking -> embedding -> vector_store -> aggregate
//
//	mapping: root -> mapping_extraction -> graph_import ---------\
//	         root -> parse -> chunking -> embedding -> vector_store -> aggregate
func Build(s Set) (*Topologies, error) {
	text, err := buildText(s)
	if err != nil {
		return nil, err
	}
	mapping, err := buildMapping(s)
	if err != nil {
		return nil, err
	}
	return &Topologies{Text: text, Mapping: mapping}, nil
}

func buildText(s Set) (*pipeline.Pipeline[*RunContext, Result], error) {
	b := pipeline.NewBuilder[*RunContext]("kg_text")
	docs := pipeline.Then(b.Root(), pipeline.Stage[*RunContext, []models.Document](s.Parse))
	triples := pipeline.Then(docs, pipeline.Stage[[]models.Document, []models.Triple](s.Extract))
	imported := pipeline.Then(triples, pipeline.Stage[[]models.Triple, int](s.Import))
	stored := vectorBranch(docs, s)
	return pipeline.Build(b, pipeline.Join2(StageAggregate, imported, stored, Aggregate))
}

func buildMapping(s Set) (*pipeline.Pipeline[*RunContext, Result], error) {
	b := pipeline.NewBuilder[*RunContext]("kg_mapping")
	triples := pipeline.Then(b.Root(), pipeline.Stage[*RunContext, []models.Triple](s.Mapping))
	imported := pipeline.Then(triples, pipeline.Stage[[]models.Triple, int](s.Import))
	docs := pipeline.Then(b.Root(), pipeline.Stage[*RunContext, []models.Document](s.Parse))
	stored := vectorBranch(docs, s)
	return pipeline.Build(b, pipeline.Join2(StageAggregate, imported, stored, Aggregate))
}

func vectorBranch(docs *pipeline.Node[[]models.Document], s Set) *pipeline.Node[int] {
	chunks := pipeline.Then(docs, pipeline.Stage[[]models.Document, []models.Chunk](s.Chunk))
	embedded := pipeline.Then(chunks, pipeline.Stage[[]models.Chunk, []models.Chunk](s.Embed))
	return pipeline.Then(embedded, pipeline.Stage[[]models.Chunk, int](s.StoreVector))
}

// Select picks the topology for a run. Mapping mode requires a column
// mapping; auto uses mapping only when a mapping is given and at least one
// file is tabular.
func (t *Topologies) Select(rc *RunContext) (*pipeline.Pipeline[*RunContext, Result], error) {
	switch rc.Mode {
	case models.ModeMapping:
		if rc.ColumnMapping == nil {
			return nil, fmt.Errorf("mapping mode requires a column mapping")
		}
		return t.Mapping, nil
	case models.ModeText:
		return t.Text, nil
	}
	if rc.ColumnMapping != nil {
		for _, p := range rc.FilePaths {
			if loader.IsTabular(p) {
				return t.Mapping, nil
			}
		}
	}
	return t.Text, nil
}
