// Package stages implements the knowledge graph construction stages and the
// two topologies that wire them: LLM text extraction and spreadsheet column
// mapping. Both topologies feed a vector branch in parallel with the triple
// branch and join the two counts at the end.
package stages

import (
	"context"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
)

// Shared context keys.
const (
	KeyTaskID       = "kg_task_id"
	KeyGraphSpace   = "kg_graph_space"
	KeyCustomPrompt = "kg_custom_prompt"
)

// Stage names, also used as metric and log labels.
const (
	StageFileParsing   = "file_parsing"
	StageLLMExtraction = "llm_extraction"
	StageMapping       = "mapping_extraction"
	StageGraphImport   = "graph_import"
	StageChunking      = "chunking"
	StageEmbedding     = "embedding"
	StageVectorStore   = "vector_store"
	StageAggregate     = "aggregate"
)

// RunContext is the input of one pipeline run. It is not modified once the
// run starts.
type RunContext struct {
	TaskID        string
	UserID        string
	GraphSpace    string
	Mode          models.ExtractionMode
	FilePaths     []string
	CustomPrompt  string
	ColumnMapping *models.ColumnMapping
	// DocumentIDs maps file base names to knowledge document ids.
	DocumentIDs map[string]string
}

// Result is the joined outcome of the triple and vector branches.
type Result struct {
	TripletsCount int `json:"triplets_count"`
	VectorsCount  int `json:"vectors_count"`
}

// Reporter receives coarse progress milestones from running stages.
type Reporter interface {
	Progress(ctx context.Context, taskID string, progress float64, step string)
}

// Progress milestones.
const (
	ProgressParsing    = 10.0
	ProgressExtracting = 30.0
	ProgressImporting  = 60.0
)

func report(ctx context.Context, r Reporter, shared *pipeline.Shared, progress float64, step string) {
	if r == nil {
		return
	}
	taskID := shared.StringOr(KeyTaskID, "")
	if taskID == "" {
		return
	}
	r.Progress(ctx, taskID, progress, step)
}

// publish stores the run-wide values later stages read from the shared
// context.
func publish(shared *pipeline.Shared, rc *RunContext) {
	shared.Set(KeyTaskID, rc.TaskID)
	if rc.GraphSpace != "" {
		shared.Set(KeyGraphSpace, rc.GraphSpace)
	}
	if rc.CustomPrompt != "" {
		shared.Set(KeyCustomPrompt, rc.CustomPrompt)
	}
}
