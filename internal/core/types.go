package core

import (
	"fmt"
	"strings"
	"time"
)

// EntityType identifies a catalog entity, e.g. "STAFF" or "DEPARTMENT".
type EntityType string

// Operation is the write a row asks for.
type Operation int

const (
	OpAdd Operation = iota
	OpUpdate
	OpDelete
)

var operationNames = [...]string{"ADD", "UPDATE", "DELETE"}

func (o Operation) String() string {
	if o < 0 || int(o) >= len(operationNames) {
		return "UNKNOWN"
	}
	return operationNames[o]
}

func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Operation) UnmarshalText(b []byte) error {
	op, ok := ParseOperation(string(b))
	if !ok {
		return fmt.Errorf("invalid operation %q", string(b))
	}
	*o = op
	return nil
}

// ParseOperation converts an operation cell to an Operation.
// A blank cell means ADD. The second return is false for unknown tokens.
func ParseOperation(s string) (Operation, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ADD", "CREATE", "INSERT", "NEW":
		return OpAdd, true
	case "UPDATE", "EDIT", "MODIFY":
		return OpUpdate, true
	case "DELETE", "REMOVE":
		return OpDelete, true
	default:
		return OpAdd, false
	}
}

// Severity grades a validation finding. Higher values are more severe.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "INFO":
		*s = SeverityInfo
	case "WARNING":
		*s = SeverityWarning
	case "ERROR":
		*s = SeverityError
	default:
		return fmt.Errorf("invalid severity %q", string(b))
	}
	return nil
}

// CellStatus is the status of a single cell or row: VALID, or the highest
// severity among its findings.
type CellStatus int

const (
	StatusValid CellStatus = iota
	StatusInfo
	StatusWarning
	StatusError
)

// statusOf maps a finding severity onto the cell status scale.
func statusOf(s Severity) CellStatus {
	switch s {
	case SeverityInfo:
		return StatusInfo
	case SeverityWarning:
		return StatusWarning
	case SeverityError:
		return StatusError
	default:
		return StatusValid
	}
}

func (c CellStatus) String() string {
	switch c {
	case StatusValid:
		return "VALID"
	case StatusInfo:
		return "INFO"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (c CellStatus) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CellStatus) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "VALID":
		*c = StatusValid
	case "INFO":
		*c = StatusInfo
	case "WARNING":
		*c = StatusWarning
	case "ERROR":
		*c = StatusError
	default:
		return fmt.Errorf("invalid cell status %q", string(b))
	}
	return nil
}

// ConflictResolution decides what happens when a row's write collides with
// the state of the target store (ADD on an existing id, UPDATE on a missing one).
type ConflictResolution string

const (
	ConflictSkip      ConflictResolution = "SKIP"
	ConflictOverwrite ConflictResolution = "OVERWRITE"
)

// ParseConflictResolution accepts SKIP or OVERWRITE (case-insensitive).
// Blank input means SKIP.
func ParseConflictResolution(s string) (ConflictResolution, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(ConflictSkip):
		return ConflictSkip, nil
	case string(ConflictOverwrite):
		return ConflictOverwrite, nil
	default:
		return "", fmt.Errorf("invalid conflict resolution %q: use SKIP or OVERWRITE", s)
	}
}

// SessionStatus tracks where a session is in its lifecycle.
type SessionStatus string

const (
	SessionActive     SessionStatus = "ACTIVE"
	SessionCommitting SessionStatus = "COMMITTING"
	SessionFailed     SessionStatus = "FAILED"
)

// CellDetail is the validated state of one cell.
type CellDetail struct {
	Value       string     `json:"value"`
	Status      CellStatus `json:"status"`
	Message     string     `json:"message,omitempty"`
	Suggestions []string   `json:"suggestions,omitempty"`
}

// ErrorEntry is one validation finding on a row.
type ErrorEntry struct {
	FieldName      string   `json:"fieldName"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Blocking       bool     `json:"blocking"`
	SuggestedFix   string   `json:"suggestedFix,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	CurrentValue   string   `json:"currentValue"`
	ExpectedFormat string   `json:"expectedFormat,omitempty"`
	Code           string   `json:"code,omitempty"`
}

// Row is one data record of a sheet.
type Row struct {
	RowID       string                `json:"rowId"`
	RowNumber   int                   `json:"rowNumber"`
	Operation   Operation             `json:"operation"`
	CellValues  map[string]string     `json:"cellValues"`
	CellDetails map[string]CellDetail `json:"cellDetails"`
	Errors      []ErrorEntry          `json:"errors"`
	Status      CellStatus            `json:"status"`
	CanImport   bool                  `json:"canImport"`
	Selected    bool                  `json:"selected"`
	Committed   bool                  `json:"committed,omitempty"`
}

// Value returns the trimmed value of a field, or "".
func (r *Row) Value(field string) string {
	return strings.TrimSpace(r.CellValues[field])
}

// BlockingErrors returns the row's blocking findings.
func (r *Row) BlockingErrors() []ErrorEntry {
	var out []ErrorEntry
	for _, e := range r.Errors {
		if e.Blocking {
			out = append(out, e)
		}
	}
	return out
}

// SheetCounts are the aggregates of one sheet.
type SheetCounts struct {
	TotalRows      int  `json:"totalRows"`
	ValidRows      int  `json:"validRows"`
	WarningRows    int  `json:"warningRows"`
	ErrorRows      int  `json:"errorRows"`
	ImportableRows int  `json:"importableRows"`
	SelectedRows   int  `json:"selectedRows"`
	CanProceed     bool `json:"canProceed"`
}

// Sheet is one worksheet resolved to an entity type.
type Sheet struct {
	SheetName      string     `json:"sheetName"`
	EntityType     EntityType `json:"entityType"`
	Headers        []string   `json:"headers"`
	UnknownHeaders []string   `json:"unknownHeaders,omitempty"`
	MissingHeaders []string   `json:"missingHeaders,omitempty"`
	Rows           []*Row     `json:"rows"`
	SheetCounts
}

// Session is the server-side state of one uploaded workbook.
type Session struct {
	SessionID        string        `json:"sessionId"`
	FileName         string        `json:"fileName"`
	Status           SessionStatus `json:"status"`
	FailureReason    string        `json:"failureReason,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	ProcessingTimeMs int64         `json:"processingTimeMs"`
	Sheets           []*Sheet      `json:"sheets"`
	LastResult       *ImportResult `json:"lastResult,omitempty"`
}

// ImportResult is the outcome of a commit.
type ImportResult struct {
	SessionID         string             `json:"sessionId"`
	Success           bool               `json:"success"`
	Message           string             `json:"message"`
	ImportedEntities  map[EntityType]int `json:"importedEntities"`
	FailedEntities    map[EntityType]int `json:"failedEntities"`
	SkippedEntities   map[EntityType]int `json:"skippedEntities"`
	SuccessfulImports int                `json:"successfulImports"`
	FailedImports     int                `json:"failedImports"`
	SkippedImports    int                `json:"skippedImports"`
	TotalProcessed    int                `json:"totalProcessed"`
	CommitOrder       []EntityType       `json:"commitOrder"`
	Errors            []string           `json:"errors"`
	Warnings          []string           `json:"warnings"`
	Aborted           bool               `json:"aborted"`
	AbortReason       string             `json:"abortReason,omitempty"`
	SessionRetained   bool               `json:"sessionRetained"`
	DurationMs        int64              `json:"durationMs"`
}

func newImportResult(sessionID string) *ImportResult {
	return &ImportResult{
		SessionID:        sessionID,
		ImportedEntities: make(map[EntityType]int),
		FailedEntities:   make(map[EntityType]int),
		SkippedEntities:  make(map[EntityType]int),
		Errors:           []string{},
		Warnings:         []string{},
	}
}

// CommitRequest carries the caller's commit options.
type CommitRequest struct {
	// SelectedRowIDs limits the commit to these rows. Empty means the
	// session's current selection.
	SelectedRowIDs       []string           `json:"selectedRowIds"`
	ContinueOnError      bool               `json:"continueOnError"`
	ValidateBeforeImport bool               `json:"validateBeforeImport"`
	ConflictResolution   ConflictResolution `json:"conflictResolution"`
}

// RowRef addresses a row by sheet and spreadsheet row number.
// An empty SheetName matches the row number in every sheet.
type RowRef struct {
	SheetName string `json:"sheetName,omitempty"`
	RowNumber int    `json:"rowNumber"`
}

// SelectionRequest replaces a session's selection with exactly these rows.
type SelectionRequest struct {
	RowIDs []string `json:"rowIds"`
	Rows   []RowRef `json:"rows,omitempty"`
}

// AutoCorrectRequest targets rows for auto-correction. Empty means all rows.
type AutoCorrectRequest struct {
	RowIDs     []string `json:"rowIds,omitempty"`
	SheetName  string   `json:"sheetName,omitempty"`
	RowNumbers []int    `json:"rowNumbers,omitempty"`
}

// AutoCorrectResult reports what an auto-correct pass changed.
type AutoCorrectResult struct {
	CorrectedCells int          `json:"correctedCells"`
	CorrectedRows  int          `json:"correctedRows"`
	Session        *SessionView `json:"session"`
}

// Record is the payload handed to a Persister for one row.
type Record struct {
	EntityType EntityType     `json:"entityType"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
}
