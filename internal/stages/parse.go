package stages

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/kgforge/internal/loader"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
)

// FileParsing loads every uploaded file into documents. Missing or
// unparsable files are skipped.
type FileParsing struct {
	Loader   loader.Loader
	Reporter Reporter
}

func (s *FileParsing) Name() string { return StageFileParsing }

func (s *FileParsing) Execute(ctx context.Context, rc *RunContext, shared *pipeline.Shared) ([]models.Document, error) {
	publish(shared, rc)
	report(ctx, s.Reporter, shared, ProgressParsing, "parsing files")
	slog.Info("parsing files", "task_id", rc.TaskID, "files", len(rc.FilePaths))

	var docs []models.Document
	for _, path := range rc.FilePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			slog.Warn("file not found", "task_id", rc.TaskID, "path", path, "error", err)
			continue
		}

		loaded, err := s.Loader.Load(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			slog.Warn("failed to parse file", "task_id", rc.TaskID, "path", path, "error", err)
			continue
		}

		docID := rc.DocumentIDs[filepath.Base(path)]
		for i := range loaded {
			if loaded[i].Metadata == nil {
				loaded[i].Metadata = make(map[string]any)
			}
			loaded[i].Metadata[models.MetaTaskID] = rc.TaskID
			if docID != "" {
				loaded[i].Metadata[models.MetaDocumentID] = docID
			}
		}
		slog.Debug("parsed file", "task_id", rc.TaskID, "path", path, "documents", len(loaded))
		docs = append(docs, loaded...)
	}
	return docs, nil
}
