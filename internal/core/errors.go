package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSessionNotFound is returned for unknown, deleted and expired sessions.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrSessionLimit is returned when the store is full of live sessions.
	ErrSessionLimit = errors.New("too many open import sessions")

	// ErrCommitInProgress rejects mutations while a commit owns the session.
	ErrCommitInProgress = errors.New("commit already in progress for this session")

	// ErrUnknownEntity is returned for entity types the catalog does not know.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrRecordExists is returned by a Persister when inserting an existing id.
	ErrRecordExists = errors.New("record already exists")

	// ErrRecordNotFound is returned by a Persister when updating or deleting
	// a missing id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrMissingReference is returned when a referenced record does not exist
	// in the batch or the target store.
	ErrMissingReference = errors.New("referenced record does not exist")
)

// ParseError fails a whole upload. No session is created.
type ParseError struct {
	Sheet  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("workbook parse failed: ")
	if e.Sheet != "" {
		fmt.Fprintf(&b, "sheet %q: ", e.Sheet)
	}
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// SelectionError rejects a request that names rows the session does not have.
// The session is left unchanged.
type SelectionError struct {
	UnknownRowIDs []string
	UnknownRows   []RowRef
}

func (e *SelectionError) Error() string {
	parts := make([]string, 0, len(e.UnknownRowIDs)+len(e.UnknownRows))
	parts = append(parts, e.UnknownRowIDs...)
	for _, ref := range e.UnknownRows {
		if ref.SheetName == "" {
			parts = append(parts, "row "+strconv.Itoa(ref.RowNumber))
		} else {
			parts = append(parts, ref.SheetName+" row "+strconv.Itoa(ref.RowNumber))
		}
	}
	return "selection references unknown rows: " + strings.Join(parts, ", ")
}

// CycleError reports entity types whose dependencies form a cycle.
type CycleError struct {
	Members []EntityType
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Members))
	for i, m := range e.Members {
		names[i] = string(m)
	}
	return "dependency cycle between entity types: " + strings.Join(names, ", ")
}

// IsNotFound reports whether err means the session is unknown or expired.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
