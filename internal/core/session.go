package core

import (
	"maps"
	"slices"
	"strings"
)

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Sheets = make([]*Sheet, len(s.Sheets))
	for i, sheet := range s.Sheets {
		c.Sheets[i] = sheet.clone()
	}
	c.LastResult = s.LastResult.clone()
	return &c
}

func (sh *Sheet) clone() *Sheet {
	c := *sh
	c.Headers = slices.Clone(sh.Headers)
	c.UnknownHeaders = slices.Clone(sh.UnknownHeaders)
	c.MissingHeaders = slices.Clone(sh.MissingHeaders)
	c.Rows = make([]*Row, len(sh.Rows))
	for i, r := range sh.Rows {
		c.Rows[i] = r.clone()
	}
	return &c
}

func (r *Row) clone() *Row {
	c := *r
	c.CellValues = maps.Clone(r.CellValues)
	if r.CellDetails != nil {
		c.CellDetails = make(map[string]CellDetail, len(r.CellDetails))
		for k, d := range r.CellDetails {
			d.Suggestions = slices.Clone(d.Suggestions)
			c.CellDetails[k] = d
		}
	}
	if r.Errors != nil {
		c.Errors = make([]ErrorEntry, len(r.Errors))
		for i, e := range r.Errors {
			e.Suggestions = slices.Clone(e.Suggestions)
			c.Errors[i] = e
		}
	}
	return &c
}

func (r *ImportResult) clone() *ImportResult {
	if r == nil {
		return nil
	}
	c := *r
	c.ImportedEntities = maps.Clone(r.ImportedEntities)
	c.FailedEntities = maps.Clone(r.FailedEntities)
	c.SkippedEntities = maps.Clone(r.SkippedEntities)
	c.CommitOrder = slices.Clone(r.CommitOrder)
	c.Errors = slices.Clone(r.Errors)
	c.Warnings = slices.Clone(r.Warnings)
	return &c
}

// Row returns the row with the given id and the sheet holding it.
func (s *Session) Row(rowID string) (*Sheet, *Row, bool) {
	for _, sheet := range s.Sheets {
		for _, row := range sheet.Rows {
			if row.RowID == rowID {
				return sheet, row, true
			}
		}
	}
	return nil, nil, false
}

// resolveRows turns row ids and (sheet, row number) references into a set
// of row ids. Any reference the session does not contain fails the whole
// call with a SelectionError.
func (s *Session) resolveRows(ids []string, refs []RowRef) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, sheet := range s.Sheets {
		for _, row := range sheet.Rows {
			known[row.RowID] = true
		}
	}

	set := make(map[string]bool, len(ids)+len(refs))
	var selErr SelectionError
	for _, id := range ids {
		if !known[id] {
			selErr.UnknownRowIDs = append(selErr.UnknownRowIDs, id)
			continue
		}
		set[id] = true
	}

	for _, ref := range refs {
		matched := false
		for _, sheet := range s.Sheets {
			if ref.SheetName != "" && !strings.EqualFold(sheet.SheetName, ref.SheetName) {
				continue
			}
			for _, row := range sheet.Rows {
				if row.RowNumber == ref.RowNumber {
					set[row.RowID] = true
					matched = true
				}
			}
		}
		if !matched {
			selErr.UnknownRows = append(selErr.UnknownRows, ref)
		}
	}

	if len(selErr.UnknownRowIDs) > 0 || len(selErr.UnknownRows) > 0 {
		return nil, &selErr
	}
	return set, nil
}

// SetSelection replaces the selection with exactly the requested rows.
// Unknown rows reject the request and leave the selection untouched.
func (s *Session) SetSelection(req SelectionRequest) error {
	set, err := s.resolveRows(req.RowIDs, req.Rows)
	if err != nil {
		return err
	}
	for _, sheet := range s.Sheets {
		for _, row := range sheet.Rows {
			row.Selected = set[row.RowID]
		}
		sheet.Recount()
	}
	return nil
}

// SelectedRowIDs returns the ids of selected rows in sheet order.
func (s *Session) SelectedRowIDs() []string {
	var ids []string
	for _, sheet := range s.Sheets {
		for _, row := range sheet.Rows {
			if row.Selected {
				ids = append(ids, row.RowID)
			}
		}
	}
	return ids
}

// ReplaceRows merges rows back into the session by row id, keeping sheet
// order and row numbers. Rows the session no longer has are ignored.
// Returns the number of rows replaced.
func (s *Session) ReplaceRows(rows []*Row) int {
	byID := make(map[string]*Row, len(rows))
	for _, r := range rows {
		byID[r.RowID] = r
	}
	n := 0
	for _, sheet := range s.Sheets {
		for i, row := range sheet.Rows {
			if repl, ok := byID[row.RowID]; ok {
				repl = repl.clone()
				repl.RowNumber = row.RowNumber
				sheet.Rows[i] = repl
				n++
			}
		}
		sheet.Recount()
	}
	return n
}

// selectImportable selects every importable row. Used for the initial
// selection after upload.
func (s *Session) selectImportable() {
	for _, sheet := range s.Sheets {
		for _, row := range sheet.Rows {
			row.Selected = row.CanImport
		}
		sheet.Recount()
	}
}
