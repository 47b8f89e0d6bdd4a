// Package loader turns uploaded files into documents and tables.
package loader

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/parser"
)

var (
	// ErrUnsupported is returned for file types no loader handles.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrLegacyWorkbook is returned for Excel 97-2003 .xls files, which the
	// spreadsheet reader cannot open.
	ErrLegacyWorkbook = errors.New("legacy .xls workbooks are not supported, save as .xlsx")
)

// Loader returns the parsed documents of one file.
type Loader interface {
	Load(ctx context.Context, path string) ([]models.Document, error)
}

// FileLoader detects the file type from the extension.
type FileLoader struct{}

// New returns a FileLoader.
func New() *FileLoader {
	return &FileLoader{}
}

// Load reads path and returns its documents. Text-like files yield one
// document; spreadsheets yield one document per sheet.
func (l *FileLoader) Load(ctx context.Context, path string) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := models.FileType(path)
	switch ext {
	case "txt", "text", "log":
		return loadText(path, ext)
	case "md", "markdown":
		return loadMarkdown(path, ext)
	case "json":
		return loadJSON(path)
	case "csv":
		return loadCSV(path)
	case "xlsx", "xlsm":
		return loadSpreadsheet(path, ext)
	case "xls":
		return nil, fmt.Errorf("%w: %s", ErrLegacyWorkbook, filepath.Base(path))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
}

// IsSpreadsheet reports whether name has a spreadsheet extension.
func IsSpreadsheet(name string) bool {
	switch models.FileType(name) {
	case "xlsx", "xlsm":
		return true
	}
	return false
}

// IsTabular reports whether name can be read as a table: a spreadsheet or
// a CSV file.
func IsTabular(name string) bool {
	return IsSpreadsheet(name) || models.FileType(name) == "csv"
}

func baseMeta(path, fileType string) map[string]any {
	return map[string]any{
		models.MetaSource:   path,
		models.MetaDocName:  filepath.Base(path),
		models.MetaFileType: fileType,
	}
}

func loadText(path, ext string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return []models.Document{{Content: string(data), Metadata: baseMeta(path, ext)}}, nil
}

func loadMarkdown(path, ext string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	md := parser.ParseMarkdown(string(data))
	meta := baseMeta(path, ext)
	if md.Title != "" {
		meta[models.MetaTitle] = md.Title
	}
	return []models.Document{{Content: md.Body, Metadata: meta}}, nil
}

func loadJSON(path string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("parse %s: invalid JSON", path)
	}
	return []models.Document{{Content: string(data), Metadata: baseMeta(path, "json")}}, nil
}

func loadCSV(path string) ([]models.Document, error) {
	t, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	return []models.Document{{Content: t.Text(), Metadata: baseMeta(path, "csv")}}, nil
}

func readCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return newTable("", records), nil
}

func loadSpreadsheet(path, ext string) ([]models.Document, error) {
	tables, err := ReadTables(path)
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(tables))
	for _, t := range tables {
		text := t.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		meta := baseMeta(path, ext)
		meta[models.MetaSheet] = t.Sheet
		docs = append(docs, models.Document{Content: text, Metadata: meta})
	}
	return docs, nil
}
