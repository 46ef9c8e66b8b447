package core

// preview.go builds what the client renders between upload and commit:
// sheet counts, session summaries and the within-sheet duplicate-key check.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SessionSummary is the aggregate view of a session.
type SessionSummary struct {
	SessionID         string             `json:"sessionId"`
	FileName          string             `json:"fileName"`
	Status            SessionStatus      `json:"status"`
	FailureReason     string             `json:"failureReason,omitempty"`
	TotalSheets       int                `json:"totalSheets"`
	TotalRows         int                `json:"totalRows"`
	ValidRows         int                `json:"validRows"`
	WarningRows       int                `json:"warningRows"`
	ErrorRows         int                `json:"errorRows"`
	ImportableRows    int                `json:"importableRows"`
	SelectedRows      int                `json:"selectedRows"`
	EntityTypeCounts  map[EntityType]int `json:"entityTypeCounts"`
	HasBlockingErrors bool               `json:"hasBlockingErrors"`
	SuccessRate       float64            `json:"successRate"`
	ProcessingTimeMs  int64              `json:"processingTimeMs"`
	CreatedAt         time.Time          `json:"createdAt"`
	ExpiresAt         time.Time          `json:"expiresAt"`
}

// SessionView is the summary plus full sheet detail.
type SessionView struct {
	SessionSummary
	Sheets     []*Sheet      `json:"sheets"`
	LastResult *ImportResult `json:"lastResult,omitempty"`
}

// SheetSummary is a sheet's counts without its rows.
type SheetSummary struct {
	SheetName  string     `json:"sheetName"`
	EntityType EntityType `json:"entityType"`
	SheetCounts
}

// SelectionResult is returned after a selection change.
type SelectionResult struct {
	SessionSummary
	Sheets []SheetSummary `json:"sheets"`
}

// Recount recomputes the sheet aggregates from its rows.
// Rows with a blocking finding count as error rows; importable rows count
// as warning rows when their status is WARNING or ERROR (non-blocking).
func (s *Sheet) Recount() {
	c := SheetCounts{TotalRows: len(s.Rows)}
	for _, r := range s.Rows {
		switch {
		case !r.CanImport:
			c.ErrorRows++
		case r.Status >= StatusWarning:
			c.WarningRows++
			c.ImportableRows++
		default:
			c.ValidRows++
			c.ImportableRows++
		}
		if r.Selected {
			c.SelectedRows++
		}
	}
	c.CanProceed = c.ImportableRows > 0 && c.ErrorRows == 0
	s.SheetCounts = c
}

// Recount recomputes every sheet's aggregates.
func (s *Session) Recount() {
	for _, sheet := range s.Sheets {
		sheet.Recount()
	}
}

// Summary aggregates the session's sheet counts.
func (s *Session) Summary() SessionSummary {
	sum := SessionSummary{
		SessionID:        s.SessionID,
		FileName:         s.FileName,
		Status:           s.Status,
		FailureReason:    s.FailureReason,
		TotalSheets:      len(s.Sheets),
		EntityTypeCounts: make(map[EntityType]int, len(s.Sheets)),
		ProcessingTimeMs: s.ProcessingTimeMs,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
	}
	for _, sheet := range s.Sheets {
		sum.TotalRows += sheet.TotalRows
		sum.ValidRows += sheet.ValidRows
		sum.WarningRows += sheet.WarningRows
		sum.ErrorRows += sheet.ErrorRows
		sum.ImportableRows += sheet.ImportableRows
		sum.SelectedRows += sheet.SelectedRows
		sum.EntityTypeCounts[sheet.EntityType] += sheet.TotalRows
	}
	sum.HasBlockingErrors = sum.ErrorRows > 0
	if sum.TotalRows > 0 {
		rate := float64(sum.ImportableRows) / float64(sum.TotalRows) * 100
		sum.SuccessRate = math.Round(rate*10) / 10
	}
	return sum
}

// View returns the summary together with the sheets. The view shares the
// session's sheets; callers pass a snapshot.
func (s *Session) View() *SessionView {
	return &SessionView{
		SessionSummary: s.Summary(),
		Sheets:         s.Sheets,
		LastResult:     s.LastResult,
	}
}

// SelectionResult returns the summary with per-sheet counters.
func (s *Session) SelectionResult() *SelectionResult {
	res := &SelectionResult{
		SessionSummary: s.Summary(),
		Sheets:         make([]SheetSummary, len(s.Sheets)),
	}
	for i, sheet := range s.Sheets {
		res.Sheets[i] = SheetSummary{
			SheetName:   sheet.SheetName,
			EntityType:  sheet.EntityType,
			SheetCounts: sheet.SheetCounts,
		}
	}
	return res
}

// markDuplicates flags rows of one sheet that share a key. It looks at all
// rows before flagging anything: the first occurrence (lowest row number)
// gets a WARNING, every later occurrence a blocking ERROR. Findings from an
// earlier pass are replaced.
func markDuplicates(def *EntityDefinition, sheet *Sheet) {
	seenKeys := make(map[string][]*Row) // key -> rows in sheet order
	var keys []string

	for _, row := range sheet.Rows {
		row.Errors = dropCode(row.Errors, CodeDuplicateKey)
		key := row.Value(def.KeyField)
		if key == "" {
			continue
		}
		if _, ok := seenKeys[key]; !ok {
			keys = append(keys, key)
		}
		seenKeys[key] = append(seenKeys[key], row)
	}

	for _, key := range keys {
		rows := seenKeys[key]
		if len(rows) < 2 {
			continue
		}
		first := rows[0]
		for i, row := range rows {
			var e ErrorEntry
			if i == 0 {
				e = ErrorEntry{
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("%s %q is repeated on rows %s; only this row can be imported", def.KeyField, key, rowNumbers(rows[1:])),
				}
			} else {
				e = ErrorEntry{
					Severity: SeverityError,
					Blocking: true,
					Message:  fmt.Sprintf("duplicate %s %q: first defined on row %d", def.KeyField, key, first.RowNumber),
				}
			}
			e.FieldName = def.KeyField
			e.CurrentValue = key
			e.Code = CodeDuplicateKey
			row.Errors = append(row.Errors, e)
		}
	}

	for _, row := range sheet.Rows {
		finalizeRow(row)
	}
}

func dropCode(entries []ErrorEntry, code string) []ErrorEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Code != code {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func rowNumbers(rows []*Row) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = strconv.Itoa(r.RowNumber)
	}
	return strings.Join(parts, ", ")
}
