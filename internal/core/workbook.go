package core

// workbook.go turns uploaded .xlsx bytes into typed sheets.
//
// Parsing is all-or-nothing: any structural problem fails the whole upload
// with a ParseError and no sheet is returned. Cell-level problems are left
// to the validator.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// EntityMarker in cell A1 names the entity of a sheet whose name does not
// resolve, e.g. "#entity:STAFF". The header row then moves to row 2.
const EntityMarker = "#entity:"

// DefaultMaxRowsPerSheet bounds the data rows read from one sheet.
const DefaultMaxRowsPerSheet = 50000

// WorkbookParser reads workbooks against a catalog.
type WorkbookParser struct {
	catalog *Catalog
	maxRows int
}

// NewWorkbookParser returns a parser. maxRows of zero or less uses
// DefaultMaxRowsPerSheet.
func NewWorkbookParser(c *Catalog, maxRows int) *WorkbookParser {
	if maxRows <= 0 {
		maxRows = DefaultMaxRowsPerSheet
	}
	return &WorkbookParser{catalog: c, maxRows: maxRows}
}

// Parse reads every entity sheet of the workbook. Sheets named with a
// leading underscore and sheets without cells are skipped.
func (p *WorkbookParser) Parse(ctx context.Context, data []byte) ([]*Sheet, error) {
	if len(data) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Reason: "invalid workbook", Err: err}
	}
	defer f.Close()

	var sheets []*Sheet
	seen := make(map[EntityType]string)
	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(name, "_") {
			continue
		}

		rows, err := f.GetRows(name)
		if err != nil {
			return nil, &ParseError{Sheet: name, Reason: "unreadable sheet", Err: err}
		}
		if isBlank(rows) {
			continue
		}

		sheet, err := p.parseSheet(name, rows)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[sheet.EntityType]; dup {
			return nil, &ParseError{
				Sheet:  name,
				Reason: fmt.Sprintf("duplicate entity sheet: %s already provided by sheet %q", sheet.EntityType, prev),
			}
		}
		seen[sheet.EntityType] = name
		sheets = append(sheets, sheet)
	}

	if len(sheets) == 0 {
		return nil, &ParseError{Reason: "workbook contains no entity sheets"}
	}
	return sheets, nil
}

func (p *WorkbookParser) parseSheet(name string, rows [][]string) (*Sheet, error) {
	headerIdx := 0
	marker := ""
	if len(rows[0]) > 0 {
		if a1 := CleanCell(rows[0][0]); strings.HasPrefix(strings.ToLower(a1), EntityMarker) {
			marker = strings.TrimSpace(a1[len(EntityMarker):])
			headerIdx = 1
		}
	}

	def, ok := p.catalog.Resolve(name)
	if !ok && marker != "" {
		def, ok = p.catalog.Resolve(marker)
	}
	if !ok {
		reason := "unknown entity sheet"
		if marker != "" {
			reason = fmt.Sprintf("unknown entity sheet (marker %q)", marker)
		}
		return nil, &ParseError{Sheet: name, Reason: reason}
	}

	sheet := &Sheet{
		SheetName:  name,
		EntityType: def.Type,
		Rows:       []*Row{},
	}
	if headerIdx >= len(rows) {
		return nil, &ParseError{Sheet: name, Reason: "missing header row"}
	}

	columns, err := mapColumns(def, sheet, rows[headerIdx])
	if err != nil {
		return nil, &ParseError{Sheet: name, Reason: err.Error()}
	}

	opField, hasOp := def.OperationField()
	for i := headerIdx + 1; i < len(rows); i++ {
		if isBlankRow(rows[i]) {
			continue
		}
		if len(sheet.Rows) >= p.maxRows {
			return nil, &ParseError{Sheet: name, Reason: fmt.Sprintf("sheet exceeds %d data rows", p.maxRows)}
		}

		row := &Row{
			RowID:      uuid.NewString(),
			RowNumber:  i + 1,
			CellValues: make(map[string]string, len(columns)),
			Errors:     []ErrorEntry{},
		}
		for col, field := range columns {
			if field == "" {
				continue
			}
			value := ""
			if col < len(rows[i]) {
				value = CleanCell(rows[i][col])
			}
			row.CellValues[field] = value
		}
		if hasOp {
			row.Operation, _ = ParseOperation(row.CellValues[opField.Name])
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

var errDuplicateColumn = errors.New("duplicate column")

// mapColumns maps each header cell to a canonical field name, or to the
// verbatim header for unknown columns. Empty header cells map to "".
func mapColumns(def *EntityDefinition, sheet *Sheet, header []string) ([]string, error) {
	columns := make([]string, len(header))
	used := make(map[string]string)
	for i, raw := range header {
		h := CleanCell(raw)
		if h == "" {
			continue
		}
		sheet.Headers = append(sheet.Headers, h)

		name := h
		if f, ok := def.FieldForHeader(h); ok {
			name = f.Name
		} else {
			sheet.UnknownHeaders = append(sheet.UnknownHeaders, h)
		}
		if prev, dup := used[name]; dup {
			return nil, fmt.Errorf("%w: %q and %q both map to %s", errDuplicateColumn, prev, h, name)
		}
		used[name] = h
		columns[i] = name
	}

	for _, f := range def.Fields {
		if _, ok := used[f.Name]; !ok {
			sheet.MissingHeaders = append(sheet.MissingHeaders, f.Name)
		}
	}
	return columns, nil
}

func isBlank(rows [][]string) bool {
	for _, r := range rows {
		if !isBlankRow(r) {
			return false
		}
	}
	return true
}

func isBlankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
