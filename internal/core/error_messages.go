// # Error Codes Reference
//
// User-facing errors carry a code support staff can look up. Codes are
// grouped by category:
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: upload exceeds the size limit
//	FILE002 - Invalid workbook: file is not a readable .xlsx workbook
//	FILE003 - Unknown sheet: a sheet does not name a known entity type,
//	          or the workbook has no entity sheets at all
//	FILE004 - No file: the request carried no file part
//	FILE005 - Empty file: the uploaded file has no content
//	FILE006 - Duplicate: two sheets for one entity type, or two columns
//	          for one field
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: unknown, expired or already committed
//	SES002 - Session limit: too many open import sessions
//	SES003 - Commit in progress: the session is being committed
//
// # Selection Errors (SEL001-SEL099)
//
//	SEL001 - Unknown rows: the request names rows the session does not have
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date          VAL005 - Unknown column
//	VAL002 - Invalid number        VAL006 - Invalid enum value
//	VAL003 - Required field empty  VAL007 - Invalid identifier
//	VAL004 - Missing column
//
// # Dependency Errors (DEP001-DEP099)
//
//	DEP001 - Dependency cycle between entity types; nothing was written
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - System busy: too many uploads or commits in progress
//	IMP002 - Missing reference: a referenced record does not exist
//	IMP003 - Unknown entity type
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key          DB005 - Connection reset
//	DB002 - Unique constraint      DB006 - Timeout
//	DB003 - Foreign key            DB007 - Deadlock
//	DB004 - Connection refused
//
// # Request Errors
//
//	UPL004 - Request cancelled
//	UPL005 - Request timed out
//	RATE001 - Too many requests
//	ERR000 - Unexpected error; check the logs for the technical error
//
// # Matching
//
// Known sentinel and typed errors are matched first with errors.Is and
// errors.As. Everything else falls back to case-insensitive substring
// patterns, first match wins.
package core

import (
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	msgSessionNotFound = UserMessage{
		Message: "Import session not found",
		Action:  "The session may have expired or been committed. Please upload the workbook again",
		Code:    "SES001",
	}
	msgSessionLimit = UserMessage{
		Message: "Too many open import sessions",
		Action:  "Finish or abandon an open import, or try again later",
		Code:    "SES002",
	}
	msgCommitInProgress = UserMessage{
		Message: "This import is being committed",
		Action:  "Wait for the commit to finish, then reload the session",
		Code:    "SES003",
	}
	msgUnknownRows = UserMessage{
		Message: "The request names rows that are not part of this import",
		Action:  "Reload the session and select rows again",
		Code:    "SEL001",
	}
	msgCycle = UserMessage{
		Message: "Entity types depend on each other in a cycle",
		Action:  "Nothing was imported. Contact support to fix the entity catalog",
		Code:    "DEP001",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}
	msgMissingReference = UserMessage{
		Message: "A referenced record does not exist",
		Action:  "Include the referenced record in the workbook or create it first",
		Code:    "IMP002",
	}
	msgUnknownEntity = UserMessage{
		Message: "Unknown entity type",
		Action:  "Check the list of importable entity types",
		Code:    "IMP003",
	}
)

// sentinelMessages are checked with errors.Is, in order.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrSessionNotFound, msgSessionNotFound},
	{ErrSessionLimit, msgSessionLimit},
	{ErrCommitInProgress, msgCommitInProgress},
	{ErrTooManyImports, msgBusy},
	{ErrMissingReference, msgMissingReference},
	{ErrUnknownEntity, msgUnknownEntity},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively with strings.Contains.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors
	// =========================================================================
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the workbook into smaller files", "FILE001"}},
	{"request body too large", UserMessage{"File exceeds maximum size limit", "Split the workbook into smaller files", "FILE001"}},
	{"invalid workbook", UserMessage{"File is not a valid Excel workbook", "Save the file as .xlsx and upload it again", "FILE002"}},
	{"unknown entity sheet", UserMessage{"A sheet name does not match any entity type", "Rename the sheet or add an #entity:<TYPE> marker in cell A1", "FILE003"}},
	{"no entity sheets", UserMessage{"The workbook has no entity sheets", "Start from the import template", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select an .xlsx file to upload", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a workbook with data rows", "FILE005"}},
	{"duplicate entity sheet", UserMessage{"Two sheets hold the same entity type", "Merge the sheets into one", "FILE006"}},
	{"duplicate column", UserMessage{"Two columns map to the same field", "Remove the repeated column", "FILE006"}},

	// =========================================================================
	// Database Errors
	// =========================================================================
	{"duplicate key", UserMessage{"A record with this ID already exists", "Use UPDATE, or commit with conflict resolution OVERWRITE", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your workbook", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Review your data for duplicate key values", "DB002"}},
	{"foreign key constraint", UserMessage{"Referenced record does not exist", "Ensure parent records are imported first", "DB003"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Ensure parent records are imported first", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller workbook or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// =========================================================================
	// Validation Errors
	// =========================================================================
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Remove currency symbols and use standard decimal format", "VAL002"}},
	{"required field", UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL003"}},
	{"missing required column", UserMessage{"Required column is missing from the sheet", "Check that all required columns are present", "VAL004"}},
	{"column not found", UserMessage{"Expected column not found", "Verify column headers match the template", "VAL005"}},
	{"invalid enum", UserMessage{"Value is not in the allowed list", "Check the allowed values for this field", "VAL006"}},
	{"invalid identifier", UserMessage{"Identifier has the wrong format", "Use <Entity>_<number>, e.g. Staff_12", "VAL007"}},

	// =========================================================================
	// Request Errors
	// =========================================================================
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller workbook or check your connection", "UPL005"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(fmt.Errorf("get: %w", ErrSessionNotFound))
//	// msg.Code == "SES001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}
	var selErr *SelectionError
	if errors.As(err, &selErr) {
		return msgUnknownRows
	}
	var cycErr *CycleError
	if errors.As(err, &cycErr) {
		return msgCycle
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
