package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// instructionsSheet is skipped by the parser because of its leading underscore.
const instructionsSheet = "_Instructions"

// templateRows bounds the enum drop-down lists added to template columns.
const templateRows = 1000

// BuildTemplate writes an .xlsx workbook with one header-only sheet per
// entity, in commit order, plus an instructions sheet. With no entities it
// covers the whole catalog.
func BuildTemplate(c *Catalog, entities ...*EntityDefinition) ([]byte, error) {
	if len(entities) == 0 {
		order, err := c.Graph().Sort()
		if err != nil {
			return nil, err
		}
		for _, t := range order {
			if def, ok := c.Get(t); ok {
				entities = append(entities, def)
			}
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("template style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", instructionsSheet); err != nil {
		return nil, fmt.Errorf("template instructions: %w", err)
	}
	if err := writeInstructions(f, entities); err != nil {
		return nil, err
	}

	for _, def := range entities {
		if err := writeEntitySheet(f, def, bold); err != nil {
			return nil, fmt.Errorf("template sheet %s: %w", def.Type, err)
		}
	}
	if len(entities) > 0 {
		if idx, err := f.GetSheetIndex(sheetTitle(entities[0])); err == nil {
			f.SetActiveSheet(idx)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write template: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetTitle is the display name cut to Excel's 31 character limit.
func sheetTitle(def *EntityDefinition) string {
	name := def.DisplayName
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func writeEntitySheet(f *excelize.File, def *EntityDefinition, headerStyle int) error {
	sheet := sheetTitle(def)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := make([]any, len(def.Fields))
	for i, field := range def.Fields {
		headers[i] = field.Name
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}

	last, err := excelize.ColumnNumberToName(len(def.Fields))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 22); err != nil {
		return err
	}

	for i, field := range def.Fields {
		var values []string
		switch field.Type {
		case FieldEnum:
			values = field.Values
		case FieldOperation:
			values = []string{"ADD", "UPDATE", "DELETE"}
		case FieldBool:
			values = []string{"true", "false"}
		default:
			continue
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		dv := excelize.NewDataValidation(true)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", col, col, templateRows)
		if err := dv.SetDropList(values); err != nil {
			return err
		}
		if err := f.AddDataValidation(sheet, dv); err != nil {
			return err
		}
	}
	return nil
}

func writeInstructions(f *excelize.File, entities []*EntityDefinition) error {
	lines := [][]any{
		{"Import template"},
		{"Fill one sheet per entity type. Sheets are imported in the order they appear here."},
		{"Identifiers use the form <Prefix>_<number>, dates YYYY-MM-DD, times HH:mm."},
		{"Leave Operation empty to add a row; use UPDATE or DELETE to change existing records."},
		{},
		{"Sheet", "Required columns", "Depends on"},
	}
	for _, def := range entities {
		var required []string
		for _, field := range def.Fields {
			if field.Required || field.Name == def.KeyField {
				required = append(required, field.Name)
			}
		}
		deps := make([]string, 0)
		for _, d := range def.Dependencies() {
			deps = append(deps, string(d))
		}
		lines = append(lines, []any{sheetTitle(def), strings.Join(required, ", "), strings.Join(deps, ", ")})
	}

	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(instructionsSheet, cell, &line); err != nil {
			return fmt.Errorf("template instructions: %w", err)
		}
	}
	return f.SetColWidth(instructionsSheet, "A", "C", 40)
}
