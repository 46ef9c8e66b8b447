package core

import "context"

// AutoCorrector applies validator suggestions to session rows.
type AutoCorrector struct {
	validator *Validator
}

// NewAutoCorrector returns an auto-corrector that re-validates with v.
func NewAutoCorrector(v *Validator) *AutoCorrector {
	return &AutoCorrector{validator: v}
}

// Apply replaces every ERROR or WARNING cell of the targeted rows that has
// a suggestion with its first suggestion, then re-validates the workbook.
// A nil target set means every row. Committed rows are never touched.
// Rows that become importable are selected.
//
// Returns the number of cells and rows changed.
func (a *AutoCorrector) Apply(ctx context.Context, sess *Session, targets map[string]bool) (cells, rows int, err error) {
	wasImportable := make(map[string]bool)
	for _, sheet := range sess.Sheets {
		for _, row := range sheet.Rows {
			wasImportable[row.RowID] = row.CanImport
			if row.Committed || (targets != nil && !targets[row.RowID]) {
				continue
			}
			if n := correctRow(row); n > 0 {
				cells += n
				rows++
			}
		}
	}
	if cells == 0 {
		return 0, 0, nil
	}

	// Corrected keys can resolve references on rows that were not targeted,
	// so the whole workbook is validated again.
	if err := a.validator.ValidateSheets(ctx, sess.Sheets); err != nil {
		return 0, 0, err
	}

	for _, sheet := range sess.Sheets {
		for _, row := range sheet.Rows {
			if row.CanImport && !wasImportable[row.RowID] && !row.Committed {
				row.Selected = true
			}
			if !row.CanImport {
				row.Selected = false
			}
		}
		sheet.Recount()
	}
	return cells, rows, nil
}

func correctRow(row *Row) int {
	n := 0
	for field, d := range row.CellDetails {
		if d.Status < StatusWarning || len(d.Suggestions) == 0 {
			continue
		}
		if _, ok := row.CellValues[field]; !ok {
			continue
		}
		fix := d.Suggestions[0]
		if fix == row.CellValues[field] {
			continue
		}
		row.CellValues[field] = fix
		n++
	}
	return n
}
