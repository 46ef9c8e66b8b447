package entities

import (
	"context"
	"testing"

	"github.com/JonMunkholm/RosterImport/internal/core"
)

func loadedCatalog(t *testing.T) *core.Catalog {
	t.Helper()
	c := core.NewCatalog()
	if err := Load(c); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return c
}

func TestLoad(t *testing.T) {
	c := loadedCatalog(t)
	if c.Len() != 11 {
		t.Errorf("Len() = %d, want 11", c.Len())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if core.DefaultCatalog().Len() != 11 {
		t.Errorf("DefaultCatalog().Len() = %d, want 11", core.DefaultCatalog().Len())
	}

	if err := Load(c); err == nil {
		t.Error("second Load() into the same catalog returned no error")
	}
}

func TestDefinitions_Shape(t *testing.T) {
	c := loadedCatalog(t)
	for _, def := range c.All() {
		t.Run(string(def.Type), func(t *testing.T) {
			if _, ok := def.Field(def.KeyField); !ok {
				t.Errorf("no key field %q", def.KeyField)
			}
			if _, ok := def.OperationField(); !ok {
				t.Error("no Operation field")
			}
			if def.IDPrefix == "" || def.DisplayName == "" {
				t.Errorf("IDPrefix=%q DisplayName=%q", def.IDPrefix, def.DisplayName)
			}
			for _, f := range def.ReferenceFields() {
				if _, ok := c.Get(f.References); !ok {
					t.Errorf("%s references unknown entity %s", f.Name, f.References)
				}
			}
		})
	}

	def, err := c.Lookup("squad_working_pattern")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if def.IDPrefix != "SquadWorkingPattern" {
		t.Errorf("IDPrefix = %q, want SquadWorkingPattern", def.IDPrefix)
	}
}

func TestCommitOrder(t *testing.T) {
	c := loadedCatalog(t)
	order, err := c.Graph().Sort()
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	pos := make(map[core.EntityType]int, len(order))
	for i, et := range order {
		pos[et] = i
	}

	before := [][2]core.EntityType{
		{"DEPARTMENT", "STAFF"},
		{"DEPARTMENT", "TASK"},
		{"QUALIFICATION", "STAFF"},
		{"WORKING_PERIOD", "SHIFT"},
		{"SQUAD_WORKING_PATTERN", "SQUAD"},
		{"SQUAD", "STAFF"},
		{"STAFF", "DAY_OFF_RULE"},
		{"STAFF", "CONSTRAINT_OVERRIDE"},
		{"CONSTRAINT", "CONSTRAINT_OVERRIDE"},
	}
	for _, b := range before {
		if pos[b[0]] >= pos[b[1]] {
			t.Errorf("%s commits at %d, after %s at %d", b[0], pos[b[0]], b[1], pos[b[1]])
		}
	}
}

func TestSheetAliases(t *testing.T) {
	c := loadedCatalog(t)
	tests := []struct {
		sheet string
		want  core.EntityType
	}{
		{"Employees", "STAFF"},
		{"staff members", "STAFF"},
		{"Working Periods", "WORKING_PERIOD"},
		{"day_off_rule", "DAY_OFF_RULE"},
		{"Overrides", "CONSTRAINT_OVERRIDE"},
		{"Teams", "SQUAD"},
	}
	for _, tt := range tests {
		t.Run(tt.sheet, func(t *testing.T) {
			def, ok := c.Resolve(tt.sheet)
			if !ok || def.Type != tt.want {
				t.Errorf("Resolve(%q) = %v, want %s", tt.sheet, def, tt.want)
			}
		})
	}
}

// ============================================================================
// Cross-field rules
// ============================================================================

// validateRow runs the full rule set over one row of the given entity.
func validateRow(t *testing.T, c *core.Catalog, entity core.EntityType, values map[string]string) *core.Row {
	t.Helper()
	def, ok := c.Get(entity)
	if !ok {
		t.Fatalf("entity %s not registered", entity)
	}
	sheet := &core.Sheet{
		SheetName:  def.DisplayName,
		EntityType: entity,
		Headers:    def.Headers(),
		Rows: []*core.Row{{
			RowID:      "row-2",
			RowNumber:  2,
			CellValues: values,
		}},
	}
	if err := core.NewValidator(c, 1).ValidateSheets(context.Background(), []*core.Sheet{sheet}); err != nil {
		t.Fatalf("ValidateSheets() error = %v", err)
	}
	return sheet.Rows[0]
}

func businessFinding(row *core.Row, field string) (core.ErrorEntry, bool) {
	for _, e := range row.Errors {
		if e.FieldName == field && e.Code == core.CodeBusinessRule {
			return e, true
		}
	}
	return core.ErrorEntry{}, false
}

func TestCrossFieldRules(t *testing.T) {
	c := loadedCatalog(t)

	tests := []struct {
		name         string
		entity       core.EntityType
		values       map[string]string
		field        string
		wantFinding  bool
		wantSeverity core.Severity
		wantBlocking bool
	}{
		{
			name:   "day shift",
			entity: "SHIFT",
			values: map[string]string{"ID": "Shift_1", "Name": "Early", "Working Period ID": "WorkingPeriod_1", "Start Time": "06:00", "End Time": "14:00"},
			field:  "End Time",
		},
		{
			name:        "zero length shift",
			entity:      "SHIFT",
			values:      map[string]string{"ID": "Shift_1", "Name": "Early", "Working Period ID": "WorkingPeriod_1", "Start Time": "06:00", "End Time": "06:00"},
			field:       "End Time",
			wantFinding: true, wantSeverity: core.SeverityError, wantBlocking: true,
		},
		{
			name:        "overnight shift",
			entity:      "SHIFT",
			values:      map[string]string{"ID": "Shift_1", "Name": "Night", "Working Period ID": "WorkingPeriod_1", "Start Time": "22:00", "End Time": "06:00"},
			field:       "End Time",
			wantFinding: true, wantSeverity: core.SeverityInfo,
		},
		{
			name:   "malformed time left to the field rule",
			entity: "SHIFT",
			values: map[string]string{"ID": "Shift_1", "Name": "Early", "Working Period ID": "WorkingPeriod_1", "Start Time": "6am", "End Time": "06:00"},
			field:  "End Time",
		},
		{
			name:        "period ends before it starts",
			entity:      "WORKING_PERIOD",
			values:      map[string]string{"ID": "WorkingPeriod_1", "Name": "Spring", "Start Date": "2025-05-31", "End Date": "2025-03-01"},
			field:       "End Date",
			wantFinding: true, wantSeverity: core.SeverityError, wantBlocking: true,
		},
		{
			name:   "single day period",
			entity: "WORKING_PERIOD",
			values: map[string]string{"ID": "WorkingPeriod_1", "Name": "Spring", "Start Date": "2025-03-01", "End Date": "2025-03-01"},
			field:  "End Date",
		},
		{
			name:        "override ends before it starts",
			entity:      "CONSTRAINT_OVERRIDE",
			values:      map[string]string{"ID": "ConstraintOverride_1", "Staff ID": "Staff_1", "Constraint ID": "Constraint_1", "Value": "10", "Start Date": "2025-02-01", "End Date": "2025-01-01"},
			field:       "End Date",
			wantFinding: true, wantSeverity: core.SeverityError, wantBlocking: true,
		},
		{
			name:        "day off without target",
			entity:      "DAY_OFF_RULE",
			values:      map[string]string{"ID": "DayOffRule_1", "Staff ID": "Staff_1"},
			field:       "Date",
			wantFinding: true, wantSeverity: core.SeverityError, wantBlocking: true,
		},
		{
			name:   "day off by weekday",
			entity: "DAY_OFF_RULE",
			values: map[string]string{"ID": "DayOffRule_1", "Staff ID": "Staff_1", "Day Of Week": "MONDAY"},
			field:  "Date",
		},
		{
			name:   "day off by date",
			entity: "DAY_OFF_RULE",
			values: map[string]string{"ID": "DayOffRule_1", "Staff ID": "Staff_1", "Date": "2025-12-25"},
			field:  "Date",
		},
		{
			name:   "pattern matches cycle",
			entity: "SQUAD_WORKING_PATTERN",
			values: map[string]string{"ID": "SquadWorkingPattern_1", "Name": "4 on 4 off", "Cycle Length Days": "8", "Pattern": "DDNN----"},
			field:  "Pattern",
		},
		{
			name:        "pattern too short",
			entity:      "SQUAD_WORKING_PATTERN",
			values:      map[string]string{"ID": "SquadWorkingPattern_1", "Name": "4 on 4 off", "Cycle Length Days": "8", "Pattern": "DDNN--"},
			field:       "Pattern",
			wantFinding: true, wantSeverity: core.SeverityError, wantBlocking: true,
		},
		{
			name:   "pattern with bad cycle length left to the field rule",
			entity: "SQUAD_WORKING_PATTERN",
			values: map[string]string{"ID": "SquadWorkingPattern_1", "Name": "4 on 4 off", "Cycle Length Days": "eight", "Pattern": "DDNN--"},
			field:  "Pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validateRow(t, c, tt.entity, tt.values)
			e, ok := businessFinding(row, tt.field)
			if ok != tt.wantFinding {
				t.Fatalf("business finding on %s = %v, want %v (errors %+v)", tt.field, ok, tt.wantFinding, row.Errors)
			}
			if !ok {
				return
			}
			if e.Severity != tt.wantSeverity || e.Blocking != tt.wantBlocking {
				t.Errorf("finding = %v blocking=%v, want %v blocking=%v", e.Severity, e.Blocking, tt.wantSeverity, tt.wantBlocking)
			}
			if tt.wantBlocking && row.CanImport {
				t.Error("row with a blocking business rule is importable")
			}
		})
	}
}

func TestCrossFieldRules_SkippedForDelete(t *testing.T) {
	c := loadedCatalog(t)
	row := validateRow(t, c, "DAY_OFF_RULE", map[string]string{"ID": "DayOffRule_1", "Operation": "DELETE"})
	if _, ok := businessFinding(row, "Date"); ok {
		t.Error("DELETE row checked for a day off target")
	}
	if !row.CanImport {
		t.Errorf("DELETE row not importable: %+v", row.Errors)
	}
}
