package core

// executor.go commits selected rows to a Persister.
//
// Rows are dispatched one at a time in dependency order. There is no
// transaction across rows: a failed row does not undo the rows before it,
// and with continueOnError unset the first failure stops the run.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type rowOutcome int

const (
	outcomeImported rowOutcome = iota
	outcomeConflict
	outcomeFailed
)

// Executor runs commits.
type Executor struct {
	catalog   *Catalog
	persister Persister
	validator *Validator
	recorder  Recorder
	now       func() time.Time
}

// NewExecutor returns an executor writing to p. A nil recorder discards
// measurements.
func NewExecutor(c *Catalog, p Persister, v *Validator, r Recorder) *Executor {
	if r == nil {
		r = nopRecorder{}
	}
	return &Executor{catalog: c, persister: p, validator: v, recorder: r, now: time.Now}
}

// Execute commits the requested rows of snap. snap must be a private copy:
// committed rows are flagged on it and the caller writes it back.
//
// A SelectionError means nothing was attempted. A CycleError comes with a
// failed result and nothing written. Every other outcome, including row
// failures and timeouts, is reported in the result with a nil error.
func (e *Executor) Execute(ctx context.Context, snap *Session, req CommitRequest) (*ImportResult, error) {
	start := e.now()
	res := newImportResult(snap.SessionID)
	defer func() { res.DurationMs = e.now().Sub(start).Milliseconds() }()

	var targets map[string]bool
	if len(req.SelectedRowIDs) > 0 {
		set, err := snap.resolveRows(req.SelectedRowIDs, nil)
		if err != nil {
			return nil, err
		}
		targets = set
	} else {
		targets = make(map[string]bool)
		for _, id := range snap.SelectedRowIDs() {
			targets[id] = true
		}
	}

	if req.ValidateBeforeImport {
		if err := e.validator.ValidateSheets(ctx, snap.Sheets); err != nil {
			return nil, fmt.Errorf("revalidate before commit: %w", err)
		}
	}

	byType := make(map[EntityType][]*Row)
	sheetOf := make(map[string]string)
	var present []EntityType
	for _, sheet := range snap.Sheets {
		for _, row := range sheet.Rows {
			if !targets[row.RowID] {
				continue
			}
			if _, ok := byType[sheet.EntityType]; !ok {
				present = append(present, sheet.EntityType)
			}
			byType[sheet.EntityType] = append(byType[sheet.EntityType], row)
			sheetOf[row.RowID] = sheet.SheetName
		}
	}
	if len(present) == 0 {
		res.Message = "no rows selected for import"
		return res, nil
	}

	order, err := e.catalog.Graph().Order(present)
	if err != nil {
		res.Aborted = true
		res.AbortReason = err.Error()
		res.Errors = append(res.Errors, err.Error())
		res.Message = "commit aborted before any write"
		return res, err
	}
	res.CommitOrder = order

	policy := req.ConflictResolution
	if policy == "" {
		policy = ConflictSkip
	}

	batch := make(ReferenceIndex)
	conflicts := 0

dispatch:
	for _, t := range order {
		def, ok := e.catalog.Get(t)
		if !ok {
			return nil, fmt.Errorf("commit %s: %w", t, ErrUnknownEntity)
		}
		for _, row := range orderRows(def, byType[t]) {
			if err := ctx.Err(); err != nil {
				res.Aborted = true
				res.AbortReason = abortReason(err)
				break dispatch
			}

			where := fmt.Sprintf("%s row %d", sheetOf[row.RowID], row.RowNumber)
			switch {
			case row.Committed:
				res.SkippedImports++
				res.SkippedEntities[t]++
				res.Warnings = append(res.Warnings, where+": already committed")
				e.recorder.RowCommitted(t, OutcomeSkipped)
				continue
			case !row.CanImport:
				res.SkippedImports++
				res.SkippedEntities[t]++
				res.Warnings = append(res.Warnings, where+": not importable: "+firstBlocking(row))
				e.recorder.RowCommitted(t, OutcomeSkipped)
				continue
			}

			outcome, note, err := e.commitRow(ctx, def, row, policy, batch)
			switch outcome {
			case outcomeImported:
				row.Committed = true
				row.Selected = false
				res.SuccessfulImports++
				res.ImportedEntities[t]++
				if note != "" {
					res.Warnings = append(res.Warnings, where+": "+note)
				}
				if row.Status == StatusWarning {
					res.Warnings = append(res.Warnings, where+": imported with warnings: "+warningText(row))
				}
				e.recorder.RowCommitted(t, OutcomeImported)
			case outcomeConflict:
				conflicts++
				res.SkippedImports++
				res.SkippedEntities[t]++
				res.Warnings = append(res.Warnings, where+": "+note)
				e.recorder.RowCommitted(t, OutcomeSkipped)
			case outcomeFailed:
				res.FailedImports++
				res.FailedEntities[t]++
				res.Errors = append(res.Errors, where+": "+err.Error())
				e.recorder.RowCommitted(t, OutcomeFailed)
				if !req.ContinueOnError {
					res.Aborted = true
					res.AbortReason = "stopped at first failure"
					break dispatch
				}
			}
		}
	}

	res.TotalProcessed = res.SuccessfulImports + res.FailedImports + res.SkippedImports
	res.Success = res.FailedImports == 0 && !res.Aborted && (res.SuccessfulImports > 0 || conflicts > 0)
	res.Message = resultMessage(res)
	return res, nil
}

// commitRow writes one row. note carries a warning for imported rows and
// the skip reason for conflicts.
func (e *Executor) commitRow(ctx context.Context, def *EntityDefinition, row *Row, policy ConflictResolution, batch ReferenceIndex) (outcome rowOutcome, note string, err error) {
	rec := buildRecord(def, row)

	if row.Operation != OpDelete {
		if err := e.checkReferences(ctx, def, row, batch); err != nil {
			return outcomeFailed, "", err
		}
	}

	switch row.Operation {
	case OpAdd:
		err = e.persister.Insert(ctx, rec)
		if errors.Is(err, ErrRecordExists) {
			if policy != ConflictOverwrite {
				return outcomeConflict, fmt.Sprintf("%s already exists; skipped", rec.ID), nil
			}
			if err = e.persister.Update(ctx, rec); err == nil {
				note = fmt.Sprintf("%s already existed and was overwritten", rec.ID)
			}
		}
	case OpUpdate:
		err = e.persister.Update(ctx, rec)
		if errors.Is(err, ErrRecordNotFound) {
			if policy != ConflictOverwrite {
				return outcomeConflict, fmt.Sprintf("%s does not exist; update skipped", rec.ID), nil
			}
			if err = e.persister.Insert(ctx, rec); err == nil {
				note = fmt.Sprintf("%s did not exist and was created", rec.ID)
			}
		}
	case OpDelete:
		err = e.persister.Delete(ctx, def.Type, rec.ID)
		if errors.Is(err, ErrRecordNotFound) {
			return outcomeConflict, fmt.Sprintf("%s does not exist; delete skipped", rec.ID), nil
		}
	}
	if err != nil {
		return outcomeFailed, "", fmt.Errorf("%s %s: %w", strings.ToLower(row.Operation.String()), rec.ID, err)
	}

	ids := batch[def.Type]
	if ids == nil {
		ids = make(map[string]struct{})
		batch[def.Type] = ids
	}
	if row.Operation == OpDelete {
		delete(ids, rec.ID)
	} else {
		ids[rec.ID] = struct{}{}
	}
	return outcomeImported, note, nil
}

// checkReferences resolves every reference of the row against ids committed
// earlier in this run, then against the persister.
func (e *Executor) checkReferences(ctx context.Context, def *EntityDefinition, row *Row, batch ReferenceIndex) error {
	for _, f := range def.ReferenceFields() {
		value := row.Value(f.Name)
		if value == "" {
			continue
		}
		ids := []string{value}
		if f.List {
			ids = splitList(value)
		}
		for _, id := range ids {
			if batch.Has(f.References, id) {
				continue
			}
			ok, err := e.persister.Exists(ctx, f.References, id)
			if err != nil {
				return fmt.Errorf("%s: check %s %s: %w", f.Name, f.References, id, err)
			}
			if !ok {
				return fmt.Errorf("%s: %w: %s %s", f.Name, ErrMissingReference, f.References, id)
			}
		}
	}
	return nil
}

func abortReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "commit timed out; remaining rows were not imported"
	}
	return "commit cancelled; remaining rows were not imported"
}

func firstBlocking(row *Row) string {
	if errs := row.BlockingErrors(); len(errs) > 0 {
		return errs[0].Message
	}
	return "row has blocking errors"
}

func warningText(row *Row) string {
	var msgs []string
	for _, e := range row.Errors {
		if e.Severity == SeverityWarning {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func resultMessage(res *ImportResult) string {
	switch {
	case res.Success:
		return fmt.Sprintf("imported %d rows, skipped %d", res.SuccessfulImports, res.SkippedImports)
	case res.Aborted:
		return fmt.Sprintf("import aborted after %d rows: %s", res.SuccessfulImports, res.AbortReason)
	case res.FailedImports > 0:
		return fmt.Sprintf("imported %d rows, %d failed", res.SuccessfulImports, res.FailedImports)
	default:
		return "nothing was imported"
	}
}
