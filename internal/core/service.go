package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/RosterImport/internal/logging"
	"github.com/google/uuid"
)

const (
	// DefaultParseTimeout bounds parsing and validating one upload.
	DefaultParseTimeout = 2 * time.Minute

	// DefaultCommitTimeout bounds one commit run.
	DefaultCommitTimeout = 5 * time.Minute
)

// Options configures a Service. Persister is required; everything else has
// a default.
type Options struct {
	Catalog           *Catalog
	Store             SessionStore
	Persister         Persister
	Audit             AuditSink
	Recorder          Recorder
	Limiter           *ImportLimiter
	ParseTimeout      time.Duration
	CommitTimeout     time.Duration
	ValidationWorkers int
	MaxRowsPerSheet   int
}

// Service provides the import pipeline: upload, preview, correction,
// selection and commit.
type Service struct {
	catalog   *Catalog
	store     SessionStore
	audit     AuditSink
	recorder  Recorder
	limiter   *ImportLimiter
	parser    *WorkbookParser
	validator *Validator
	corrector *AutoCorrector
	executor  *Executor

	parseTimeout  time.Duration
	commitTimeout time.Duration
	now           func() time.Time
}

// NewService creates a Service. The catalog is validated up front so a
// dependency cycle is reported at startup rather than at the first commit.
func NewService(opts Options) (*Service, error) {
	if opts.Persister == nil {
		return nil, errors.New("new service: persister is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if err := opts.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}
	if opts.Store == nil {
		opts.Store = NewMemorySessionStore(DefaultSessionTTL)
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Limiter == nil {
		opts.Limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}
	if opts.ParseTimeout <= 0 {
		opts.ParseTimeout = DefaultParseTimeout
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = DefaultCommitTimeout
	}

	validator := NewValidator(opts.Catalog, opts.ValidationWorkers)
	return &Service{
		catalog:       opts.Catalog,
		store:         opts.Store,
		audit:         opts.Audit,
		recorder:      opts.Recorder,
		limiter:       opts.Limiter,
		parser:        NewWorkbookParser(opts.Catalog, opts.MaxRowsPerSheet),
		validator:     validator,
		corrector:     NewAutoCorrector(validator),
		executor:      NewExecutor(opts.Catalog, opts.Persister, validator, opts.Recorder),
		parseTimeout:  opts.ParseTimeout,
		commitTimeout: opts.CommitTimeout,
		now:           time.Now,
	}, nil
}

// CreateSession parses and validates a workbook and stores it as a new
// session with every importable row selected. On any error no session is
// created.
func (s *Service) CreateSession(ctx context.Context, fileName string, data []byte) (*SessionView, error) {
	log := logging.WithFields(ctx, "file", fileName, "bytes", len(data))

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	start := s.now()
	pctx, cancel := context.WithTimeout(ctx, s.parseTimeout)
	defer cancel()

	sheets, err := s.parser.Parse(pctx, data)
	if err == nil {
		err = s.validator.ValidateSheets(pctx, sheets)
	}
	if err != nil {
		s.recorder.UploadFinished(false, s.now().Sub(start))
		log.Warn("upload rejected", "error", err)
		var perr *ParseError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, fmt.Errorf("upload %s: %w", fileName, err)
	}

	sess := &Session{
		SessionID:        uuid.NewString(),
		FileName:         fileName,
		Status:           SessionActive,
		Sheets:           sheets,
		ProcessingTimeMs: s.now().Sub(start).Milliseconds(),
	}
	sess.selectImportable()

	if err := s.store.Create(ctx, sess); err != nil {
		s.recorder.UploadFinished(false, s.now().Sub(start))
		return nil, fmt.Errorf("store session: %w", err)
	}

	s.recorder.UploadFinished(true, s.now().Sub(start))
	s.recordRows(sheets)
	s.recorder.SessionsOpen(s.store.Len())

	view := sess.View()
	logging.ForSession(log, sess.SessionID).Info("import session created",
		"sheets", view.TotalSheets,
		"rows", view.TotalRows,
		"importable", view.ImportableRows,
		"errors", view.ErrorRows,
		"duration_ms", view.ProcessingTimeMs,
	)
	return view, nil
}

func (s *Service) recordRows(sheets []*Sheet) {
	for _, sheet := range sheets {
		counts := make(map[CellStatus]int)
		for _, row := range sheet.Rows {
			counts[row.Status]++
		}
		for status, n := range counts {
			s.recorder.RowsValidated(sheet.EntityType, status, n)
		}
	}
}

// GetSession returns the session with full sheet detail.
func (s *Service) GetSession(ctx context.Context, id string) (*SessionView, error) {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap.View(), nil
}

// UpdateSelection replaces the session's selection.
func (s *Service) UpdateSelection(ctx context.Context, id string, req SelectionRequest) (*SelectionResult, error) {
	snap, err := s.store.Update(ctx, id, func(sess *Session) error {
		if sess.Status == SessionCommitting {
			return ErrCommitInProgress
		}
		return sess.SetSelection(req)
	})
	if err != nil {
		return nil, err
	}
	return snap.SelectionResult(), nil
}

// AutoCorrect applies suggestions to the targeted rows, or to every row
// when the request is empty.
func (s *Service) AutoCorrect(ctx context.Context, id string, req AutoCorrectRequest) (*AutoCorrectResult, error) {
	var cells, rows int
	snap, err := s.store.Update(ctx, id, func(sess *Session) error {
		if sess.Status == SessionCommitting {
			return ErrCommitInProgress
		}
		targets, err := autoCorrectTargets(sess, req)
		if err != nil {
			return err
		}
		cells, rows, err = s.corrector.Apply(ctx, sess, targets)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recorder.CellsCorrected(cells)
	logging.ForSession(logging.FromContext(ctx), id).Info("auto-correct applied",
		"cells", cells, "rows", rows)
	return &AutoCorrectResult{
		CorrectedCells: cells,
		CorrectedRows:  rows,
		Session:        snap.View(),
	}, nil
}

func autoCorrectTargets(sess *Session, req AutoCorrectRequest) (map[string]bool, error) {
	if len(req.RowIDs) > 0 || len(req.RowNumbers) > 0 {
		refs := make([]RowRef, len(req.RowNumbers))
		for i, n := range req.RowNumbers {
			refs[i] = RowRef{SheetName: req.SheetName, RowNumber: n}
		}
		return sess.resolveRows(req.RowIDs, refs)
	}
	if req.SheetName == "" {
		return nil, nil
	}
	for _, sheet := range sess.Sheets {
		if sheet.SheetName != req.SheetName {
			continue
		}
		targets := make(map[string]bool, len(sheet.Rows))
		for _, row := range sheet.Rows {
			targets[row.RowID] = true
		}
		return targets, nil
	}
	return nil, &SelectionError{UnknownRows: []RowRef{{SheetName: req.SheetName}}}
}

// Commit imports the selected rows. The session is deleted when the
// result is a full success and kept with its committed rows flagged
// otherwise. The run is detached from ctx cancellation and bounded by the
// commit timeout; on timeout the session is marked FAILED.
//
// A dependency cycle is reported as an unsuccessful result, not an error.
func (s *Service) Commit(ctx context.Context, id string, req CommitRequest) (*ImportResult, error) {
	log := logging.ForSession(logging.FromContext(ctx), id)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	snap, err := s.store.Update(ctx, id, func(sess *Session) error {
		if sess.Status == SessionCommitting {
			return ErrCommitInProgress
		}
		sess.Status = SessionCommitting
		sess.FailureReason = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	cctx, cancel := context.WithTimeout(detached, s.commitTimeout)
	start := s.now()
	res, execErr := s.executor.Execute(cctx, snap, req)
	timedOut := cctx.Err() != nil
	cancel()

	var cycle *CycleError
	if execErr != nil && !errors.As(execErr, &cycle) {
		s.restoreActive(detached, id)
		return nil, execErr
	}
	if cycle != nil {
		log.Error("commit aborted: dependency cycle", "members", cycle.Members)
	}

	if res.Success {
		if err := s.store.Delete(detached, id); err != nil && !IsNotFound(err) {
			log.Warn("delete committed session", "error", err)
		}
	} else {
		_, err := s.store.Update(detached, id, func(sess *Session) error {
			var rows []*Row
			for _, sheet := range snap.Sheets {
				rows = append(rows, sheet.Rows...)
			}
			sess.ReplaceRows(rows)
			sess.LastResult = res.clone()
			sess.Status = SessionActive
			if res.Aborted && timedOut {
				sess.Status = SessionFailed
				sess.FailureReason = res.AbortReason
			}
			return nil
		})
		if err != nil {
			log.Warn("write back commit result", "error", err)
		}
		res.SessionRetained = err == nil
	}

	if s.audit != nil {
		if err := s.audit.RecordImport(detached, newAuditEntry(ctx, snap, res, s.now())); err != nil {
			log.Warn("record import audit", "error", err)
		}
	}
	s.recorder.CommitFinished(res.Success, s.now().Sub(start))
	s.recorder.SessionsOpen(s.store.Len())

	log.Info("commit finished",
		"success", res.Success,
		"imported", res.SuccessfulImports,
		"failed", res.FailedImports,
		"skipped", res.SkippedImports,
		"aborted", res.Aborted,
		"duration_ms", res.DurationMs,
	)
	return res, nil
}

func (s *Service) restoreActive(ctx context.Context, id string) {
	_, err := s.store.Update(ctx, id, func(sess *Session) error {
		sess.Status = SessionActive
		return nil
	})
	if err != nil && !IsNotFound(err) {
		logging.FromContext(ctx).Warn("restore session status", "session_id", id, "error", err)
	}
}

// DeleteSession abandons a session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.recorder.SessionsOpen(s.store.Len())
	logging.ForSession(logging.FromContext(ctx), id).Info("import session deleted")
	return nil
}

// Template returns an .xlsx template for one entity type, or for the whole
// catalog when entityType is empty, together with a file name.
func (s *Service) Template(entityType string) ([]byte, string, error) {
	if entityType == "" {
		data, err := BuildTemplate(s.catalog)
		return data, "import_template.xlsx", err
	}
	def, err := s.catalog.Lookup(entityType)
	if err != nil {
		return nil, "", err
	}
	data, err := BuildTemplate(s.catalog, def)
	return data, fmt.Sprintf("%s_template.xlsx", def.IDPrefix), err
}

// Entities lists the importable entity types in commit order.
func (s *Service) Entities() []*EntityDefinition {
	order, err := s.catalog.Graph().Sort()
	if err != nil {
		return s.catalog.All()
	}
	out := make([]*EntityDefinition, 0, len(order))
	for _, t := range order {
		if def, ok := s.catalog.Get(t); ok {
			out = append(out, def)
		}
	}
	return out
}

// LimiterStatus reports upload and commit slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running uploads and commits finish or ctx
// is done. Used during shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
