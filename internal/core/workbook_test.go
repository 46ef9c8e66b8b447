package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func parseWorkbook(t *testing.T, c *Catalog, data []byte) ([]*Sheet, error) {
	t.Helper()
	return NewWorkbookParser(c, 0).Parse(context.Background(), data)
}

// ============================================================================
// Happy path
// ============================================================================

func TestParse_AliasesAndHeaders(t *testing.T) {
	c := testCatalog(t)
	data := buildWorkbook(t,
		sheetData{"Employees", [][]string{
			{"ID", "First Name", "E-mail", "Department", "Notes"},
			{"Staff_1", " Ada ", "ada@example.com", "Department_1", "likes mornings"},
		}},
		sheetData{"Departments", [][]string{
			{"ID", "Name", "Parent", "Action"},
			{"Department_1", "Operations", "", "edit"},
		}},
	)

	sheets, err := parseWorkbook(t, c, data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(sheets) != 2 {
		t.Fatalf("Parse() returned %d sheets, want 2", len(sheets))
	}

	staff := sheets[0]
	if staff.EntityType != "STAFF" || staff.SheetName != "Employees" {
		t.Errorf("sheet 0 = %s/%s, want STAFF/Employees", staff.EntityType, staff.SheetName)
	}
	if !slices.Equal(staff.UnknownHeaders, []string{"Notes"}) {
		t.Errorf("UnknownHeaders = %v, want [Notes]", staff.UnknownHeaders)
	}
	for _, missing := range []string{"Phone", "Hire Date", "Operation"} {
		if !slices.Contains(staff.MissingHeaders, missing) {
			t.Errorf("MissingHeaders = %v, want it to contain %s", staff.MissingHeaders, missing)
		}
	}

	row := staff.Rows[0]
	want := map[string]string{
		"ID":            "Staff_1",
		"First Name":    "Ada",
		"Email":         "ada@example.com",
		"Department ID": "Department_1",
		"Notes":         "likes mornings",
	}
	for k, v := range want {
		if row.CellValues[k] != v {
			t.Errorf("CellValues[%q] = %q, want %q", k, row.CellValues[k], v)
		}
	}
	if row.RowNumber != 2 {
		t.Errorf("RowNumber = %d, want 2", row.RowNumber)
	}
	if row.RowID == "" {
		t.Error("RowID is empty")
	}
	if row.Operation != OpAdd {
		t.Errorf("Operation = %v, want ADD", row.Operation)
	}

	dept := sheets[1]
	if dept.EntityType != "DEPARTMENT" {
		t.Errorf("sheet 1 entity = %s, want DEPARTMENT", dept.EntityType)
	}
	if got := dept.Rows[0].Operation; got != OpUpdate {
		t.Errorf("department Operation = %v, want UPDATE", got)
	}
	if _, ok := dept.Rows[0].CellValues["Parent Department ID"]; !ok {
		t.Error("Parent alias did not map to Parent Department ID")
	}
}

func TestParse_RowNumbersFollowTheSpreadsheet(t *testing.T) {
	c := testCatalog(t)
	data := buildWorkbook(t, sheetData{"Department", [][]string{
		{"ID", "Name"},
		{"Department_1", "Operations"},
		{"", ""},
		{"Department_2", "Kitchen"},
	}})

	sheets, err := parseWorkbook(t, c, data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var got []int
	for _, r := range sheets[0].Rows {
		got = append(got, r.RowNumber)
	}
	if !slices.Equal(got, []int{2, 4}) {
		t.Errorf("row numbers = %v, want [2 4]", got)
	}
	if sheets[0].Rows[0].RowID == sheets[0].Rows[1].RowID {
		t.Error("row ids are not unique")
	}
}

func TestParse_EntityMarker(t *testing.T) {
	c := testCatalog(t)
	data := buildWorkbook(t, sheetData{"People", [][]string{
		{"#ENTITY: staff"},
		{"ID", "First Name", "Department ID"},
		{"Staff_1", "Ada", "Department_1"},
	}})

	sheets, err := parseWorkbook(t, c, data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sheet := sheets[0]
	if sheet.EntityType != "STAFF" {
		t.Errorf("EntityType = %s, want STAFF", sheet.EntityType)
	}
	if len(sheet.Rows) != 1 || sheet.Rows[0].RowNumber != 3 {
		t.Fatalf("rows = %+v, want one row numbered 3", sheet.Rows)
	}
	if sheet.Rows[0].CellValues["First Name"] != "Ada" {
		t.Errorf("First Name = %q, want Ada", sheet.Rows[0].CellValues["First Name"])
	}
}

func TestParse_SkipsNotesAndBlankSheets(t *testing.T) {
	c := testCatalog(t)
	data := buildWorkbook(t,
		sheetData{"_Notes", [][]string{{"anything goes here"}}},
		sheetData{"Scratch", nil},
		sheetData{"Department", [][]string{{"ID", "Name"}, {"Department_1", "Operations"}}},
	)

	sheets, err := parseWorkbook(t, c, data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(sheets) != 1 || sheets[0].EntityType != "DEPARTMENT" {
		t.Errorf("Parse() = %d sheets, want only DEPARTMENT", len(sheets))
	}
}

func TestParse_HeaderOnlySheet(t *testing.T) {
	c := testCatalog(t)
	data := buildWorkbook(t, sheetData{"Department", [][]string{{"ID", "Name"}}})

	sheets, err := parseWorkbook(t, c, data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(sheets[0].Rows) != 0 {
		t.Errorf("Rows = %d, want 0", len(sheets[0].Rows))
	}
}

// ============================================================================
// Structural failures
// ============================================================================

func TestParse_Failures(t *testing.T) {
	c := testCatalog(t)

	tests := []struct {
		name       string
		data       []byte
		wantSheet  string
		wantReason string
	}{
		{
			name:       "empty file",
			data:       nil,
			wantReason: "empty file",
		},
		{
			name:       "not a workbook",
			data:       []byte("ID,Name\nDepartment_1,Operations\n"),
			wantReason: "invalid workbook",
		},
		{
			name: "unknown sheet",
			data: buildWorkbook(t,
				sheetData{"Department", [][]string{{"ID", "Name"}, {"Department_1", "Operations"}}},
				sheetData{"Robots", [][]string{{"ID"}, {"Robot_1"}}},
			),
			wantSheet:  "Robots",
			wantReason: "unknown entity sheet",
		},
		{
			name:       "unknown marker",
			data:       buildWorkbook(t, sheetData{"People", [][]string{{"#entity:ROBOT"}, {"ID"}}}),
			wantSheet:  "People",
			wantReason: `marker "ROBOT"`,
		},
		{
			name: "duplicate entity sheet",
			data: buildWorkbook(t,
				sheetData{"Departments", [][]string{{"ID", "Name"}, {"Department_1", "Operations"}}},
				sheetData{"Department", [][]string{{"ID", "Name"}, {"Department_2", "Kitchen"}}},
			),
			wantSheet:  "Department",
			wantReason: "duplicate entity sheet",
		},
		{
			name:       "duplicate column",
			data:       buildWorkbook(t, sheetData{"Staff", [][]string{{"ID", "Email", "E-mail"}, {"Staff_1", "a@b.co", "c@d.co"}}}),
			wantSheet:  "Staff",
			wantReason: "duplicate column",
		},
		{
			name:       "marker without header row",
			data:       buildWorkbook(t, sheetData{"People", [][]string{{"#entity:STAFF"}}}),
			wantSheet:  "People",
			wantReason: "missing header row",
		},
		{
			name:       "only notes sheets",
			data:       buildWorkbook(t, sheetData{"_Notes", [][]string{{"hello"}}}),
			wantReason: "no entity sheets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheets, err := parseWorkbook(t, c, tt.data)
			if err == nil {
				t.Fatalf("Parse() = %d sheets, want error", len(sheets))
			}
			if sheets != nil {
				t.Errorf("Parse() returned sheets alongside error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %T %v, want *ParseError", err, err)
			}
			if pe.Sheet != tt.wantSheet {
				t.Errorf("Sheet = %q, want %q", pe.Sheet, tt.wantSheet)
			}
			if !strings.Contains(pe.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", pe.Reason, tt.wantReason)
			}
		})
	}
}

func TestParse_DuplicateColumnMapsToUserMessage(t *testing.T) {
	c := testCatalog(t)
	data := buildWorkbook(t, sheetData{"Staff", [][]string{{"ID", "Email", "E-mail"}}})

	_, err := parseWorkbook(t, c, data)
	if got := MapError(err).Code; got != "FILE006" {
		t.Errorf("MapError() code = %q, want FILE006", got)
	}
}

func TestParse_MaxRows(t *testing.T) {
	c := testCatalog(t)
	p := NewWorkbookParser(c, 2)

	ok := buildWorkbook(t, sheetData{"Department", [][]string{
		{"ID", "Name"},
		{"Department_1", "A"},
		{"Department_2", "B"},
	}})
	if _, err := p.Parse(context.Background(), ok); err != nil {
		t.Fatalf("Parse() at the limit error = %v", err)
	}

	over := buildWorkbook(t, sheetData{"Department", [][]string{
		{"ID", "Name"},
		{"Department_1", "A"},
		{"Department_2", "B"},
		{"Department_3", "C"},
	}})
	_, err := p.Parse(context.Background(), over)
	var pe *ParseError
	if !errors.As(err, &pe) || !strings.Contains(pe.Reason, "exceeds 2 data rows") {
		t.Errorf("Parse() error = %v, want row limit ParseError", err)
	}
}

func TestParse_Cancelled(t *testing.T) {
	c := testCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWorkbookParser(c, 0).Parse(ctx, rosterWorkbook(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Parse() error = %v, want context.Canceled", err)
	}
}
