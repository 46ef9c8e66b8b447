package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestValidateSheet_DuplicateKeys(t *testing.T) {
	c := testCatalog(t)
	sheet := testSheet(t, c, "STAFF",
		map[string]string{"ID": "Staff_1", "First Name": "Ada", "Department ID": "Department_1"},
		map[string]string{"ID": "Staff_2", "First Name": "Bob", "Department ID": "Department_1"},
		map[string]string{"ID": "Staff_1", "First Name": "Ada again", "Department ID": "Department_1"},
	)
	sess := testSession(t, c, sheet)

	first := findRow(t, sess, "STAFF-2")
	dup := findRow(t, sess, "STAFF-4")

	e, ok := findingFor(first, "ID", CodeDuplicateKey)
	if !ok {
		t.Fatalf("first occurrence has no %s finding: %+v", CodeDuplicateKey, first.Errors)
	}
	if e.Severity != SeverityWarning || e.Blocking {
		t.Errorf("first occurrence finding = %v blocking=%v, want WARNING non-blocking", e.Severity, e.Blocking)
	}
	if !first.CanImport || first.Status != StatusWarning {
		t.Errorf("first occurrence CanImport=%v Status=%v, want importable WARNING", first.CanImport, first.Status)
	}

	e, ok = findingFor(dup, "ID", CodeDuplicateKey)
	if !ok {
		t.Fatalf("later occurrence has no %s finding: %+v", CodeDuplicateKey, dup.Errors)
	}
	if e.Severity != SeverityError || !e.Blocking {
		t.Errorf("later occurrence finding = %v blocking=%v, want blocking ERROR", e.Severity, e.Blocking)
	}
	if dup.CanImport {
		t.Error("later occurrence should not be importable")
	}

	want := SheetCounts{
		TotalRows:      3,
		ValidRows:      1,
		WarningRows:    1,
		ErrorRows:      1,
		ImportableRows: 2,
		SelectedRows:   2,
		CanProceed:     false,
	}
	if sheet.SheetCounts != want {
		t.Errorf("SheetCounts = %+v, want %+v", sheet.SheetCounts, want)
	}
}

func TestValidateSheet_RevalidationDoesNotStackFindings(t *testing.T) {
	c := testCatalog(t)
	sheet := testSheet(t, c, "STAFF",
		map[string]string{"ID": "Staff_1", "First Name": "Ada", "Department ID": "Department_1"},
		map[string]string{"ID": "Staff_1", "First Name": "Ada", "Department ID": "Department_1"},
	)
	v := NewValidator(c, 1)
	for i := 0; i < 3; i++ {
		if err := v.ValidateSheets(context.Background(), []*Sheet{sheet}); err != nil {
			t.Fatalf("ValidateSheets() error = %v", err)
		}
	}

	for _, row := range sheet.Rows {
		n := 0
		for _, e := range row.Errors {
			if e.Code == CodeDuplicateKey {
				n++
			}
		}
		if n != 1 {
			t.Errorf("row %d has %d duplicate findings, want 1", row.RowNumber, n)
		}
	}
}

func TestValidateSheet_ParallelMatchesSequential(t *testing.T) {
	c := testCatalog(t)

	build := func() *Sheet {
		rows := make([]map[string]string, 500)
		for i := range rows {
			email := fmt.Sprintf("person%d@example.com", i)
			if i%7 == 0 {
				email = "broken"
			}
			id := fmt.Sprintf("Staff_%d", i)
			if i%50 == 49 {
				id = "Staff_0"
			}
			rows[i] = map[string]string{
				"ID":            id,
				"First Name":    "Person",
				"Email":         email,
				"Department ID": "Department_1",
			}
		}
		return testSheet(t, c, "STAFF", rows...)
	}

	seq, par := build(), build()
	if err := NewValidator(c, 1).ValidateSheets(context.Background(), []*Sheet{seq}); err != nil {
		t.Fatalf("sequential ValidateSheets() error = %v", err)
	}
	if err := NewValidator(c, 4).ValidateSheets(context.Background(), []*Sheet{par}); err != nil {
		t.Fatalf("parallel ValidateSheets() error = %v", err)
	}

	if seq.SheetCounts != par.SheetCounts {
		t.Fatalf("counts differ: sequential %+v, parallel %+v", seq.SheetCounts, par.SheetCounts)
	}
	for i := range seq.Rows {
		a, b := seq.Rows[i], par.Rows[i]
		if a.Status != b.Status || a.CanImport != b.CanImport || len(a.Errors) != len(b.Errors) {
			t.Fatalf("row %d differs: sequential (%v, %v, %d), parallel (%v, %v, %d)",
				a.RowNumber, a.Status, a.CanImport, len(a.Errors), b.Status, b.CanImport, len(b.Errors))
		}
	}
}

func TestValidateRow_DerivesOperation(t *testing.T) {
	c := testCatalog(t)
	tests := []struct {
		value string
		want  Operation
	}{
		{"", OpAdd},
		{"ADD", OpAdd},
		{"new", OpAdd},
		{"Edit", OpUpdate},
		{"UPDATE", OpUpdate},
		{"delete", OpDelete},
		{"Remove", OpDelete},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			row := validateOne(t, c, "STAFF", map[string]string{
				"ID":            "Staff_1",
				"First Name":    "Ada",
				"Department ID": "Department_1",
				"Operation":     tt.value,
			})
			if row.Operation != tt.want {
				t.Errorf("Operation = %v, want %v", row.Operation, tt.want)
			}
		})
	}
}

func TestValidateRow_CellDetails(t *testing.T) {
	c := testCatalog(t)
	row := validateOne(t, c, "STAFF", map[string]string{
		"ID":            "Staff_1",
		"First Name":    "Ada",
		"Email":         "Ada@Example.com",
		"Department ID": "Department_1",
		"Phone":         "12",
	})

	tests := []struct {
		field string
		want  CellStatus
	}{
		{"ID", StatusValid},
		{"First Name", StatusValid},
		{"Email", StatusWarning},
		{"Department ID", StatusInfo},
		{"Phone", StatusError},
	}
	for _, tt := range tests {
		if got := row.CellDetails[tt.field].Status; got != tt.want {
			t.Errorf("CellDetails[%s].Status = %v, want %v", tt.field, got, tt.want)
		}
	}
	if row.Status != StatusError || row.CanImport {
		t.Errorf("row Status=%v CanImport=%v, want ERROR and not importable", row.Status, row.CanImport)
	}
	if got := row.CellDetails["Email"].Suggestions; len(got) != 1 || got[0] != "ada@example.com" {
		t.Errorf("Email suggestions = %v, want [ada@example.com]", got)
	}
}

func TestValidateSheet_UnknownEntity(t *testing.T) {
	c := testCatalog(t)
	sheet := &Sheet{SheetName: "Robots", EntityType: "ROBOT"}
	err := NewValidator(c, 1).ValidateSheet(context.Background(), sheet, nil)
	if !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("ValidateSheet() error = %v, want ErrUnknownEntity", err)
	}
}

func TestValidateSheets_Cancelled(t *testing.T) {
	c := testCatalog(t)
	sheet := testSheet(t, c, "STAFF", map[string]string{"ID": "Staff_1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewValidator(c, 2).ValidateSheets(ctx, []*Sheet{sheet})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ValidateSheets() error = %v, want context.Canceled", err)
	}
}
