package core

// validation.go runs the rule set over parsed sheets.
//
// Sheets are validated concurrently. Inside a sheet, rows are split into
// chunks handled by a bounded worker group; each worker writes only to the
// rows of its own chunk. The duplicate-key pass runs once all rows of the
// sheet are done, so results do not depend on scheduling.

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// minRowsPerWorker keeps tiny sheets on a single goroutine.
const minRowsPerWorker = 64

// Validator evaluates rows against a catalog's rule set.
type Validator struct {
	catalog *Catalog
	workers int
	now     func() time.Time
}

// NewValidator returns a validator using at most workers goroutines per
// level. Zero or less means GOMAXPROCS.
func NewValidator(c *Catalog, workers int) *Validator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Validator{catalog: c, workers: workers, now: time.Now}
}

// ValidateSheets validates every sheet of a workbook. The reference index is
// built from all sheets before any rule runs.
func (v *Validator) ValidateSheets(ctx context.Context, sheets []*Sheet) error {
	refs := BuildReferenceIndex(v.catalog, sheets)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for _, sheet := range sheets {
		g.Go(func() error {
			return v.ValidateSheet(ctx, sheet, refs)
		})
	}
	return g.Wait()
}

// ValidateSheet validates all rows of one sheet, marks duplicate keys and
// recomputes the sheet counts.
func (v *Validator) ValidateSheet(ctx context.Context, sheet *Sheet, refs ReferenceIndex) error {
	def, ok := v.catalog.Get(sheet.EntityType)
	if !ok {
		return fmt.Errorf("validate sheet %q: %w: %s", sheet.SheetName, ErrUnknownEntity, sheet.EntityType)
	}
	present := presentFields(def, sheet.Headers)
	now := v.now()

	chunk := (len(sheet.Rows) + v.workers - 1) / v.workers
	if chunk < minRowsPerWorker {
		chunk = minRowsPerWorker
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for start := 0; start < len(sheet.Rows); start += chunk {
		rows := sheet.Rows[start:min(start+chunk, len(sheet.Rows))]
		g.Go(func() error {
			for _, row := range rows {
				if err := gctx.Err(); err != nil {
					return err
				}
				v.ValidateRow(def, present, row, refs, now)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("validate sheet %q: %w", sheet.SheetName, err)
	}

	markDuplicates(def, sheet)
	sheet.Recount()
	return nil
}

// ValidateRow recomputes a row's findings, cell details, status and
// CanImport from its current cell values. The operation is re-derived from
// the operation column when the entity declares one.
func (v *Validator) ValidateRow(def *EntityDefinition, present map[string]bool, row *Row, refs ReferenceIndex, now time.Time) {
	if opField, ok := def.OperationField(); ok {
		op, _ := ParseOperation(row.CellValues[opField.Name])
		row.Operation = op
	}

	var entries []ErrorEntry
	for _, f := range def.Fields {
		if row.Operation == OpDelete && f.Name != def.KeyField && f.Type != FieldOperation {
			continue
		}
		value := row.Value(f.Name)
		rc := RuleContext{
			Catalog:   v.catalog,
			Entity:    def,
			Field:     f,
			Operation: row.Operation,
			Present:   present[f.Name],
			Values:    row.CellValues,
			Refs:      refs,
			Now:       now,
		}
		for _, rule := range v.catalog.Rules().For(def.Type, f.Name) {
			for _, finding := range rule(value, rc) {
				entries = append(entries, finding.entry(f.Name, value))
			}
		}
	}

	row.Errors = entries
	finalizeRow(row)
}

// presentFields returns the canonical fields that have a column in headers.
func presentFields(def *EntityDefinition, headers []string) map[string]bool {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		if f, ok := def.FieldForHeader(h); ok {
			present[f.Name] = true
		}
	}
	return present
}

// finalizeRow derives cell details, row status and CanImport from Errors.
func finalizeRow(row *Row) {
	details := make(map[string]CellDetail, len(row.CellValues))
	for name, value := range row.CellValues {
		details[name] = CellDetail{Value: value, Status: StatusValid}
	}

	status := StatusValid
	canImport := true
	for _, e := range row.Errors {
		d := details[e.FieldName]
		d.Value = row.CellValues[e.FieldName]

		s := statusOf(e.Severity)
		switch {
		case s > d.Status:
			d.Status = s
			d.Message = e.Message
		case s == d.Status:
			d.Message += "; " + e.Message
		}
		d.Suggestions = appendUnique(d.Suggestions, e.Suggestions...)
		details[e.FieldName] = d

		if s > status {
			status = s
		}
		if e.Blocking {
			canImport = false
		}
	}

	if row.Errors == nil {
		row.Errors = []ErrorEntry{}
	}
	row.CellDetails = details
	row.Status = status
	row.CanImport = canImport
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, existing := range list {
			if existing == it {
				found = true
				break
			}
		}
		if !found {
			list = append(list, it)
		}
	}
	return list
}
