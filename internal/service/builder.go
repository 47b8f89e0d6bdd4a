package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/raphaelgruber/kgforge/internal/graphstore"
	"github.com/raphaelgruber/kgforge/internal/loader"
	"github.com/raphaelgruber/kgforge/internal/metrics"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
	"github.com/raphaelgruber/kgforge/internal/stages"
	"github.com/raphaelgruber/kgforge/internal/store"
)

// DefaultUserID owns tasks submitted without a user.
const DefaultUserID = "default_user"

// ErrInvalidRequest wraps upload and space requests that fail validation.
var ErrInvalidRequest = errors.New("invalid request")

// UploadFile is one file of an upload.
type UploadFile struct {
	Name   string
	Reader io.Reader
}

// UploadRequest describes a construction task submission.
type UploadRequest struct {
	Files          []UploadFile
	GraphSpace     string
	Mode           models.ExtractionMode
	CustomPrompt   string
	ColumnMapping  *models.ColumnMapping
	WorkflowConfig map[string]any
	UserID         string
}

// BuilderConfig holds the GraphBuilder collaborators and settings.
type BuilderConfig struct {
	Registry   *Registry
	Tasks      store.TaskStore
	Spaces     store.SpaceStore
	Topologies *stages.Topologies
	// Connector may be nil; graph import then fails every run.
	Connector graphstore.Connector
	Metrics   *metrics.Collector

	UploadDir    string
	DefaultSpace string
	Workers      int
}

// GraphBuilder accepts uploads and runs the construction pipeline for each
// task on a bounded worker pool.
type GraphBuilder struct {
	cfg  BuilderConfig
	pool *ants.Pool
	wg   sync.WaitGroup
}

// NewGraphBuilder creates the builder and its worker pool.
func NewGraphBuilder(cfg BuilderConfig) (*GraphBuilder, error) {
	if cfg.Registry == nil || cfg.Tasks == nil || cfg.Spaces == nil || cfg.Topologies == nil {
		return nil, errors.New("graph builder: registry, stores and topologies are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DefaultSpace == "" {
		cfg.DefaultSpace = graphstore.DefaultSpace
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &GraphBuilder{cfg: cfg, pool: pool}, nil
}

// Upload saves the files, records the task as pending and schedules its run.
// It returns as soon as the run is queued.
func (b *GraphBuilder) Upload(ctx context.Context, req UploadRequest) (*models.Task, error) {
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", ErrInvalidRequest)
	}
	if req.Mode == "" {
		req.Mode = models.ModeAuto
	}
	if req.Mode == models.ModeMapping && req.ColumnMapping == nil {
		return nil, fmt.Errorf("%w: mapping mode requires a column mapping", ErrInvalidRequest)
	}
	for _, f := range req.Files {
		if models.FileType(f.Name) == "xls" {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRequest, f.Name, loader.ErrLegacyWorkbook)
		}
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	if req.GraphSpace == "" {
		req.GraphSpace = b.cfg.DefaultSpace
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	dir := filepath.Join(b.cfg.UploadDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	files := make([]models.FileInfo, 0, len(req.Files))
	paths := make([]string, 0, len(req.Files))
	for i, f := range req.Files {
		name := safeName(f.Name, i)
		path := filepath.Join(dir, name)
		size, err := saveFile(path, f.Reader)
		if err != nil {
			return nil, err
		}
		files = append(files, models.FileInfo{
			Name:   name,
			Size:   size,
			Type:   models.FileType(name),
			Status: "pending",
		})
		paths = append(paths, path)
	}

	task, err := b.cfg.Registry.Create(ctx, &models.Task{
		ID:             id,
		UserID:         req.UserID,
		GraphSpace:     req.GraphSpace,
		Files:          files,
		Mode:           req.Mode,
		CustomPrompt:   req.CustomPrompt,
		ColumnMapping:  req.ColumnMapping,
		WorkflowConfig: req.WorkflowConfig,
	})
	if err != nil {
		return nil, err
	}

	b.saveFileDetails(ctx, task, paths)
	docs := b.registerDocuments(ctx, task)

	b.schedule(task, paths, docs)
	return task, nil
}

// schedule queues the run without blocking the caller. Submit waits for a
// free worker when the pool is saturated.
func (b *GraphBuilder) schedule(task *models.Task, paths []string, docs map[string]string) {
	b.wg.Add(1)
	go func() {
		err := b.pool.Submit(func() {
			defer b.wg.Done()
			b.run(task, paths, docs)
		})
		if err != nil {
			b.wg.Done()
			b.failQueued(context.Background(), task.ID, fmt.Errorf("schedule run: %w", err))
		}
	}()
}

// failQueued fails a task that never reached the pool.
func (b *GraphBuilder) failQueued(ctx context.Context, id string, cause error) {
	if err := b.cfg.Registry.Start(ctx, id); err != nil {
		slog.Warn("failed to start unscheduled task", "task_id", id, "error", err)
		return
	}
	if _, err := b.cfg.Registry.Fail(ctx, id, cause); err != nil {
		slog.Warn("failed to fail unscheduled task", "task_id", id, "error", err)
	}
}

func safeName(name string, i int) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return fmt.Sprintf("file_%d", i)
	}
	return name
}

func saveFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

func (b *GraphBuilder) saveFileDetails(ctx context.Context, task *models.Task, paths []string) {
	for i, f := range task.Files {
		fd := &models.FileDetail{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			FileName:  f.Name,
			FilePath:  paths[i],
			FileSize:  f.Size,
			FileType:  f.Type,
			Status:    f.Status,
			CreatedAt: task.CreatedAt,
		}
		if err := b.cfg.Tasks.SaveFileDetail(ctx, fd); err != nil {
			slog.Warn("failed to save file detail", "task_id", task.ID, "file", f.Name, "error", err)
		}
	}
}

// registerDocuments links every file to the task's knowledge space when that
// space exists. It returns document ids keyed by file name.
func (b *GraphBuilder) registerDocuments(ctx context.Context, task *models.Task) map[string]string {
	docs := make(map[string]string)
	if _, err := b.cfg.Spaces.GetSpace(ctx, task.GraphSpace); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to look up knowledge space", "task_id", task.ID, "space", task.GraphSpace, "error", err)
		}
		return docs
	}

	now := time.Now().UTC()
	for _, f := range task.Files {
		doc, err := b.cfg.Spaces.FindDocument(ctx, task.GraphSpace, f.Name)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("failed to look up document", "task_id", task.ID, "file", f.Name, "error", err)
				continue
			}
			doc = &models.KnowledgeDocument{
				ID:        uuid.NewString(),
				Name:      f.Name,
				Space:     task.GraphSpace,
				Type:      "DOCUMENT",
				CreatedAt: now,
			}
		}
		doc.Status = models.DocStatusRunning
		doc.LastSync = now
		if err := b.cfg.Spaces.SaveDocument(ctx, doc); err != nil {
			slog.Warn("failed to save document", "task_id", task.ID, "file", f.Name, "error", err)
			continue
		}
		docs[f.Name] = doc.ID
	}
	return docs
}

// run executes one task. It is the body of a pool worker.
func (b *GraphBuilder) run(task *models.Task, paths []string, docs map[string]string) {
	ctx := context.Background()
	id := task.ID
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task run panicked", "task_id", id, "panic", r)
			b.fail(ctx, task, docs, fmt.Errorf("internal panic: %v", r))
		}
	}()

	if err := b.cfg.Registry.Start(ctx, id); err != nil {
		slog.Warn("task not started", "task_id", id, "error", err)
		return
	}

	rc := &stages.RunContext{
		TaskID:        id,
		UserID:        task.UserID,
		GraphSpace:    task.GraphSpace,
		Mode:          task.Mode,
		FilePaths:     paths,
		CustomPrompt:  task.CustomPrompt,
		ColumnMapping: task.ColumnMapping,
		DocumentIDs:   docs,
	}
	p, err := b.cfg.Topologies.Select(rc)
	if err != nil {
		b.fail(ctx, task, docs, err)
		return
	}

	slog.Info("running pipeline", "task_id", id, "pipeline", p.Name(), "stages", p.Stages(), "files", len(paths))
	res, err := p.Run(ctx, rc,
		pipeline.WithShared(pipeline.NewShared()),
		pipeline.WithObserver(stageObserver{taskID: id, metrics: b.cfg.Metrics}),
		pipeline.WithCancelCheck(func() bool { return b.cfg.Registry.Cancelled(id) }),
	)
	switch {
	case errors.Is(err, pipeline.ErrCancelled):
		slog.Info("run stopped after cancellation", "task_id", id, "error", err)
		b.cancelled(ctx, task, docs)
	case err != nil:
		b.fail(ctx, task, docs, err)
	default:
		b.complete(ctx, task, docs, res)
	}
}

func (b *GraphBuilder) complete(ctx context.Context, task *models.Task, docs map[string]string, res stages.Result) {
	done, err := b.cfg.Registry.Complete(ctx, task.ID, res.TripletsCount, res.VectorsCount)
	if err != nil {
		b.rejected(ctx, task, docs, "complete", err)
		return
	}
	b.cfg.Metrics.Add(metrics.TasksCompleted, 1)
	b.cfg.Metrics.Add(metrics.TriplesImported, int64(res.TripletsCount))
	b.cfg.Metrics.Add(metrics.VectorsStored, int64(res.VectorsCount))

	chunkSize := 0
	if res.VectorsCount > 0 {
		chunkSize = max(1, res.VectorsCount/max(1, len(task.Files)))
	}
	b.updateDocuments(ctx, task, docs, models.DocStatusFinished, chunkSize, done.CurrentStep)
}

func (b *GraphBuilder) fail(ctx context.Context, task *models.Task, docs map[string]string, cause error) {
	if _, err := b.cfg.Registry.Fail(ctx, task.ID, cause); err != nil {
		b.rejected(ctx, task, docs, "fail", err)
		return
	}
	b.cfg.Metrics.Add(metrics.TasksFailed, 1)
	b.updateDocuments(ctx, task, docs, models.DocStatusFailed, 0, "processing failed: "+cause.Error())
}

// rejected handles a terminal transition the registry refused. The usual
// cause is a cancellation that landed while the last stage was running.
func (b *GraphBuilder) rejected(ctx context.Context, task *models.Task, docs map[string]string, op string, err error) {
	if errors.Is(err, ErrInvalidTransition) && b.cfg.Registry.Cancelled(task.ID) {
		b.cancelled(ctx, task, docs)
		return
	}
	slog.Warn("failed to "+op+" task", "task_id", task.ID, "error", err)
}

func (b *GraphBuilder) cancelled(ctx context.Context, task *models.Task, docs map[string]string) {
	b.cfg.Metrics.Add(metrics.TasksCancelled, 1)
	b.updateDocuments(ctx, task, docs, models.DocStatusFailed, 0, MsgCancelled)
}

func (b *GraphBuilder) updateDocuments(ctx context.Context, task *models.Task, docs map[string]string, status models.DocStatus, chunkSize int, result string) {
	for name := range docs {
		doc, err := b.cfg.Spaces.FindDocument(ctx, task.GraphSpace, name)
		if err != nil {
			slog.Warn("failed to load document", "task_id", task.ID, "file", name, "error", err)
			continue
		}
		doc.Status = status
		doc.Result = result
		doc.LastSync = time.Now().UTC()
		if chunkSize > 0 {
			doc.ChunkSize = chunkSize
		}
		if err := b.cfg.Spaces.SaveDocument(ctx, doc); err != nil {
			slog.Warn("failed to update document", "task_id", task.ID, "file", name, "error", err)
		}
	}
}

// Task returns a task by id.
func (b *GraphBuilder) Task(ctx context.Context, id string) (*models.Task, error) {
	return b.cfg.Registry.Get(ctx, id)
}

// Tasks lists one page of tasks.
func (b *GraphBuilder) Tasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, int, error) {
	return b.cfg.Registry.List(ctx, filter)
}

// Cancel marks a running task cancelled.
func (b *GraphBuilder) Cancel(ctx context.Context, id string) error {
	_, err := b.cfg.Registry.Cancel(ctx, id)
	return err
}

// Delete removes a task and its uploaded files.
func (b *GraphBuilder) Delete(ctx context.Context, id string) error {
	if err := b.cfg.Registry.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(b.cfg.UploadDir, id)); err != nil {
		slog.Warn("failed to remove upload dir", "task_id", id, "error", err)
	}
	return nil
}

// Shutdown waits for queued and running tasks, then releases the pool.
func (b *GraphBuilder) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.pool.Release()
		return fmt.Errorf("wait for running tasks: %w", ctx.Err())
	}
	b.pool.Release()
	return nil
}

// stageObserver logs stage boundaries and records stage timings.
type stageObserver struct {
	taskID  string
	metrics *metrics.Collector
}

func (o stageObserver) StageStarted(_ context.Context, stage string) {
	slog.Debug("stage started", "task_id", o.taskID, "stage", stage)
}

func (o stageObserver) StageFinished(_ context.Context, stage string, elapsed time.Duration, err error) {
	o.metrics.RecordTiming(metrics.StagePrefix+stage, elapsed)
	if err != nil {
		slog.Debug("stage failed", "task_id", o.taskID, "stage", stage, "duration", elapsed, "error", err)
		return
	}
	slog.Debug("stage finished", "task_id", o.taskID, "stage", stage, "duration", elapsed)
}
