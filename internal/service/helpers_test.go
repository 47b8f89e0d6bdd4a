package service

import (
	"context"
	"iter"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kgforge/internal/embedding"
	"github.com/raphaelgruber/kgforge/internal/graphstore/graphstoretest"
	"github.com/raphaelgruber/kgforge/internal/llm"
	"github.com/raphaelgruber/kgforge/internal/loader"
	"github.com/raphaelgruber/kgforge/internal/metrics"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/parser"
	"github.com/raphaelgruber/kgforge/internal/stages"
	"github.com/raphaelgruber/kgforge/internal/store/sqlite"
	"github.com/raphaelgruber/kgforge/internal/vectorstore"
)

// scriptedLLM returns a fixed response. When gate is set, the stream waits
// for it to close before answering.
type scriptedLLM struct {
	response string
	gate     chan struct{}
	started  chan struct{}
	once     sync.Once
}

func (s *scriptedLLM) Stream(ctx context.Context, _ string, _ []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.started != nil {
			s.once.Do(func() { close(s.started) })
		}
		if s.gate != nil {
			select {
			case <-s.gate:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
		yield(s.response, nil)
	}
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "kg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

type harness struct {
	store    *sqlite.Store
	notifier *Notifier
	registry *Registry
	builder  *GraphBuilder
	graph    *graphstoretest.Memory
	chroma   *vectorstore.Chromem
	metrics  *metrics.Collector
	upload   string

	importStage *stages.GraphImport
}

func newHarness(t *testing.T, model llm.Client) *harness {
	t.Helper()
	h := &harness{
		store:    openStore(t),
		notifier: NewNotifier(0),
		graph:    graphstoretest.NewMemory(),
		metrics:  metrics.NewCollector(),
		upload:   t.TempDir(),
	}
	h.registry = NewRegistry(h.store, h.notifier)

	chroma, err := vectorstore.NewChromem("", false, h.metrics)
	require.NoError(t, err)
	h.chroma = chroma
	backends := vectorstore.NewRegistry(vectorstore.TypeChroma)
	backends.Register(vectorstore.TypeChroma, chroma)

	hash := embedding.NewHashEmbedder(32)
	h.importStage = &stages.GraphImport{Connector: h.graph, Reporter: h.registry}
	topo, err := stages.Build(stages.Set{
		Parse:       &stages.FileParsing{Loader: loader.New(), Reporter: h.registry},
		Extract:     &stages.LLMExtraction{Client: model, Model: "qwen-max", Reporter: h.registry},
		Mapping:     &stages.MappingExtraction{Reporter: h.registry},
		Import:      h.importStage,
		Chunk:       &stages.Chunking{Config: parser.DefaultChunkConfig()},
		Embed:       &stages.Embedding{Embedder: embedding.NewLazy(func() (embedding.Embedder, error) { return hash, nil }, h.metrics), Reporter: h.registry},
		StoreVector: &stages.VectorStore{Spaces: h.store, Backends: backends},
	})
	require.NoError(t, err)

	h.builder, err = NewGraphBuilder(BuilderConfig{
		Registry:   h.registry,
		Tasks:      h.store,
		Spaces:     h.store,
		Topologies: topo,
		Connector:  h.graph,
		Metrics:    h.metrics,
		UploadDir:  h.upload,
		Workers:    2,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.builder.Shutdown(ctx)
	})
	return h
}

// waitStatus polls until the task reaches status.
func (h *harness) waitStatus(t *testing.T, id string, status models.TaskStatus) *models.Task {
	t.Helper()
	var task *models.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = h.registry.Get(context.Background(), id)
		return err == nil && task.Status == status
	}, 5*time.Second, 10*time.Millisecond, "task %s never reached %s", id, status)
	return task
}

func newTask(id string) *models.Task {
	return &models.Task{
		ID:         id,
		UserID:     "u1",
		GraphSpace: "kg",
		Mode:       models.ModeText,
		Files:      []models.FileInfo{{Name: "a.txt", Size: 3, Type: "txt", Status: "pending"}},
	}
}
