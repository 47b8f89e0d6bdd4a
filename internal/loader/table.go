package loader

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/raphaelgruber/kgforge/internal/models"
)

// Table is one sheet of rows with a header line.
type Table struct {
	Sheet   string
	Columns []string
	Rows    [][]string
}

func newTable(sheet string, records [][]string) *Table {
	t := &Table{Sheet: sheet}
	if len(records) == 0 {
		return t
	}
	for _, c := range records[0] {
		t.Columns = append(t.Columns, strings.TrimSpace(c))
	}
	for _, rec := range records[1:] {
		// excelize drops trailing empty cells
		row := make([]string, len(t.Columns))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	name = strings.TrimSpace(name)
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Text renders the table as "column: value" lines, one row per line.
func (t *Table) Text() string {
	var b strings.Builder
	for _, row := range t.Rows {
		var cells []string
		for i, v := range row {
			if v = strings.TrimSpace(v); v == "" {
				continue
			}
			cells = append(cells, fmt.Sprintf("%s: %s", t.Columns[i], v))
		}
		if len(cells) == 0 {
			continue
		}
		b.WriteString(strings.Join(cells, "; "))
		b.WriteByte('\n')
	}
	return b.String()
}

// ReadTables opens a workbook and returns every sheet as a table.
func ReadTables(path string) ([]*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	var tables []*Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		tables = append(tables, newTable(sheet, rows))
	}
	return tables, nil
}

// ReadTable returns the first sheet of a workbook, or the rows of a CSV file.
func ReadTable(path string) (*Table, error) {
	if models.FileType(path) == "csv" {
		return readCSV(path)
	}
	tables, err := ReadTables(path)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return &Table{}, nil
	}
	return tables[0], nil
}
