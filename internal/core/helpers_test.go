package core

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

// ============================================================================
// Catalog fixtures
// ============================================================================

// testCatalog registers a two-entity catalog: departments, which may nest,
// and staff, who belong to a department.
func testCatalog(t testing.TB) *Catalog {
	t.Helper()
	c := NewCatalog()
	defs := []EntityDefinition{
		{
			Type:        "DEPARTMENT",
			DisplayName: "Department",
			Aliases:     []string{"Departments"},
			Fields: []FieldSpec{
				{Name: "ID", Type: FieldID},
				{Name: "Name", Type: FieldText, Required: true, MaxLength: 20},
				{Name: "Parent Department ID", Type: FieldReference, References: "DEPARTMENT", Aliases: []string{"Parent"}},
				{Name: "Active", Type: FieldBool},
				{Name: "Operation", Type: FieldOperation, Aliases: []string{"Action"}},
			},
		},
		{
			Type:        "STAFF",
			DisplayName: "Staff",
			Aliases:     []string{"Employees"},
			Fields: []FieldSpec{
				{Name: "ID", Type: FieldID},
				{Name: "First Name", Type: FieldText, Required: true},
				{Name: "Email", Type: FieldEmail, Aliases: []string{"E-mail"}},
				{Name: "Phone", Type: FieldPhone},
				{Name: "Department ID", Type: FieldReference, References: "DEPARTMENT", Required: true, Aliases: []string{"Department"}},
				{Name: "Cover Department IDs", Type: FieldReference, References: "DEPARTMENT", List: true},
				{Name: "Hire Date", Type: FieldDate},
				{Name: "Start Time", Type: FieldTime},
				{Name: "Weekly Hours", Type: FieldNumber},
				{Name: "Break Minutes", Type: FieldInteger},
				{Name: "Employment Type", Type: FieldEnum, Values: []string{"FULL_TIME", "PART_TIME", "CASUAL"}},
				{Name: "Operation", Type: FieldOperation},
			},
		},
	}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			t.Fatalf("Register(%s) error = %v", def.Type, err)
		}
	}
	return c
}

// cyclicCatalog has two entity types that reference each other.
func cyclicCatalog(t testing.TB) *Catalog {
	t.Helper()
	c := NewCatalog()
	for _, def := range []EntityDefinition{
		{Type: "A", Fields: []FieldSpec{{Name: "ID", Type: FieldID}, {Name: "B ID", Type: FieldReference, References: "B"}}},
		{Type: "B", Fields: []FieldSpec{{Name: "ID", Type: FieldID}, {Name: "A ID", Type: FieldReference, References: "A"}}},
	} {
		if err := c.Register(def); err != nil {
			t.Fatalf("Register(%s) error = %v", def.Type, err)
		}
	}
	return c
}

// ============================================================================
// Session fixtures
// ============================================================================

// testSheet builds an unvalidated sheet with every field of the entity as a
// header. Rows are numbered from 2 like spreadsheet rows under a header.
func testSheet(t testing.TB, c *Catalog, entity EntityType, rows ...map[string]string) *Sheet {
	t.Helper()
	def, ok := c.Get(entity)
	if !ok {
		t.Fatalf("entity %s not registered", entity)
	}
	sheet := &Sheet{
		SheetName:  def.DisplayName,
		EntityType: entity,
		Headers:    def.Headers(),
		Rows:       make([]*Row, 0, len(rows)),
	}
	for i, values := range rows {
		cells := make(map[string]string, len(values))
		for k, v := range values {
			cells[k] = v
		}
		sheet.Rows = append(sheet.Rows, &Row{
			RowID:      fmt.Sprintf("%s-%d", entity, i+2),
			RowNumber:  i + 2,
			CellValues: cells,
			Errors:     []ErrorEntry{},
		})
	}
	return sheet
}

// testSession validates the sheets and selects every importable row.
func testSession(t testing.TB, c *Catalog, sheets ...*Sheet) *Session {
	t.Helper()
	if err := NewValidator(c, 2).ValidateSheets(context.Background(), sheets); err != nil {
		t.Fatalf("ValidateSheets() error = %v", err)
	}
	sess := &Session{
		SessionID: "session-1",
		FileName:  "roster.xlsx",
		Status:    SessionActive,
		Sheets:    sheets,
	}
	sess.selectImportable()
	return sess
}

func findRow(t testing.TB, sess *Session, rowID string) *Row {
	t.Helper()
	_, row, ok := sess.Row(rowID)
	if !ok {
		t.Fatalf("row %s not found", rowID)
	}
	return row
}

// findingFor returns the first finding on field with the given code.
func findingFor(row *Row, field, code string) (ErrorEntry, bool) {
	for _, e := range row.Errors {
		if e.FieldName == field && e.Code == code {
			return e, true
		}
	}
	return ErrorEntry{}, false
}

// ============================================================================
// Workbook fixtures
// ============================================================================

type sheetData struct {
	name string
	rows [][]string
}

// buildWorkbook writes the sheets, in order, to an .xlsx file.
func buildWorkbook(t testing.TB, sheets ...sheetData) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				t.Fatalf("SetSheetName() error = %v", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			t.Fatalf("NewSheet(%s) error = %v", s.name, err)
		}
		for r, row := range s.rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = v
			}
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			if err := f.SetSheetRow(s.name, cell, &cells); err != nil {
				t.Fatalf("SetSheetRow() error = %v", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return buf.Bytes()
}

// rosterWorkbook has one department and two staff rows, the second with an
// invalid email.
func rosterWorkbook(t testing.TB) []byte {
	return buildWorkbook(t,
		sheetData{"Department", [][]string{
			{"ID", "Name"},
			{"Department_1", "Operations"},
		}},
		sheetData{"Staff", [][]string{
			{"ID", "First Name", "Department ID", "Email"},
			{"Staff_1", "Ada", "Department_1", "ada@example.com"},
			{"Staff_2", "Bob", "Department_1", "not-an-email"},
		}},
	)
}

// ============================================================================
// Fakes
// ============================================================================

// fakePersister is an in-memory Persister that can fail chosen ids.
type fakePersister struct {
	mu      sync.Mutex
	records map[EntityType]map[string]Record
	fail    map[string]error
	calls   []string
}

func newFakePersister() *fakePersister {
	return &fakePersister{
		records: make(map[EntityType]map[string]Record),
		fail:    make(map[string]error),
	}
}

func (p *fakePersister) seed(entity EntityType, ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.table(entity)[id] = Record{EntityType: entity, ID: id}
	}
}

func (p *fakePersister) table(entity EntityType) map[string]Record {
	tbl := p.records[entity]
	if tbl == nil {
		tbl = make(map[string]Record)
		p.records[entity] = tbl
	}
	return tbl
}

func (p *fakePersister) has(entity EntityType, id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.records[entity][id]
	return ok
}

func (p *fakePersister) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePersister) Exists(ctx context.Context, entity EntityType, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.records[entity][id]
	return ok, nil
}

func (p *fakePersister) Insert(ctx context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf("insert %s %s", rec.EntityType, rec.ID))
	if err := p.fail[rec.ID]; err != nil {
		return err
	}
	tbl := p.table(rec.EntityType)
	if _, ok := tbl[rec.ID]; ok {
		return ErrRecordExists
	}
	tbl[rec.ID] = rec
	return nil
}

func (p *fakePersister) Update(ctx context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf("update %s %s", rec.EntityType, rec.ID))
	if err := p.fail[rec.ID]; err != nil {
		return err
	}
	tbl := p.table(rec.EntityType)
	if _, ok := tbl[rec.ID]; !ok {
		return ErrRecordNotFound
	}
	tbl[rec.ID] = rec
	return nil
}

func (p *fakePersister) Delete(ctx context.Context, entity EntityType, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf("delete %s %s", entity, id))
	if err := p.fail[id]; err != nil {
		return err
	}
	tbl := p.table(entity)
	if _, ok := tbl[id]; !ok {
		return ErrRecordNotFound
	}
	delete(tbl, id)
	return nil
}

// stallingPersister blocks every Insert until ctx is done, then stores the
// record anyway.
type stallingPersister struct {
	*fakePersister
}

func (p stallingPersister) Insert(ctx context.Context, rec Record) error {
	<-ctx.Done()
	return p.fakePersister.Insert(context.Background(), rec)
}

// fakeAudit collects audit entries.
type fakeAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *fakeAudit) RecordImport(ctx context.Context, entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAudit) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...)
}

// fakeRecorder counts what the pipeline reports.
type fakeRecorder struct {
	mu           sync.Mutex
	uploads      map[bool]int
	commits      map[bool]int
	outcomes     map[string]int
	validated    map[CellStatus]int
	corrected    int
	sessionsOpen int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		uploads:      make(map[bool]int),
		commits:      make(map[bool]int),
		outcomes:     make(map[string]int),
		validated:    make(map[CellStatus]int),
		sessionsOpen: -1,
	}
}

func (r *fakeRecorder) UploadFinished(ok bool, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[ok]++
}

func (r *fakeRecorder) RowsValidated(entity EntityType, status CellStatus, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validated[status] += n
}

func (r *fakeRecorder) RowCommitted(entity EntityType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *fakeRecorder) CommitFinished(ok bool, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits[ok]++
}

func (r *fakeRecorder) CellsCorrected(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corrected += n
}

func (r *fakeRecorder) SessionsOpen(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionsOpen = n
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
