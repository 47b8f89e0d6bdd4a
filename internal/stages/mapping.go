package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/kgforge/internal/loader"
	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/pipeline"
)

// missingValues are cell texts treated as empty.
var missingValues = map[string]bool{
	"nan": true, "null": true, "none": true, "n/a": true, "#n/a": true,
}

// MappingExtraction turns spreadsheet rows into triples using the run's
// column mapping. It never calls a model.
type MappingExtraction struct {
	// ReadTable loads the first sheet of a file; loader.ReadTable when nil.
	ReadTable func(path string) (*loader.Table, error)
	Reporter  Reporter
}

func (s *MappingExtraction) Name() string { return StageMapping }

func (s *MappingExtraction) Execute(ctx context.Context, rc *RunContext, shared *pipeline.Shared) ([]models.Triple, error) {
	publish(shared, rc)
	if rc.ColumnMapping == nil {
		slog.Warn("no column mapping, returning no triples", "task_id", rc.TaskID)
		return []models.Triple{}, nil
	}
	report(ctx, s.Reporter, shared, ProgressExtracting, "extracting triples")

	read := s.ReadTable
	if read == nil {
		read = loader.ReadTable
	}

	triples := []models.Triple{}
	for _, path := range rc.FilePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !loader.IsTabular(path) {
			slog.Warn("skipping non-spreadsheet file", "task_id", rc.TaskID, "path", path)
			continue
		}
		table, err := read(path)
		if err != nil {
			slog.Warn("failed to read spreadsheet", "task_id", rc.TaskID, "path", path, "error", err)
			continue
		}
		extracted := MapTable(table, *rc.ColumnMapping)
		slog.Info("mapped spreadsheet", "task_id", rc.TaskID, "path", path, "triples", len(extracted))
		triples = append(triples, extracted...)
	}
	return triples, nil
}

// MapTable applies every relation rule to every row. Rules naming a column
// the table lacks are skipped.
func MapTable(table *loader.Table, mapping models.ColumnMapping) []models.Triple {
	var triples []models.Triple
	for _, rule := range mapping.RelationConfigs {
		si := table.ColumnIndex(rule.SubjectColumn)
		oi := table.ColumnIndex(rule.ObjectColumn)
		if si < 0 || oi < 0 {
			slog.Warn("column not found, skipping rule",
				"sheet", table.Sheet, "subject_column", rule.SubjectColumn, "object_column", rule.ObjectColumn)
			continue
		}
		for _, row := range table.Rows {
			subject := cell(row, si)
			object := cell(row, oi)
			if subject == "" || object == "" {
				continue
			}
			triples = append(triples, models.Triple{Subject: subject, Predicate: rule.Predicate, Object: object})
		}
	}
	return triples
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if missingValues[strings.ToLower(v)] {
		return ""
	}
	return v
}
