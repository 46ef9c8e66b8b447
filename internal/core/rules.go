package core

// rules.go holds the rule registry and the built-in format rules.
//
// A Rule is a pure function of one cell value and a read-only RuleContext.
// Rules never see other rows, so every row validates independently; the one
// cross-row check (duplicate keys) lives in the sheet pass in preview.go.
// Every suggestion a rule emits must itself pass all rules of its field, or
// auto-correction would stop being idempotent.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// Finding codes, also returned to clients on ErrorEntry.Code.
const (
	CodeInvalidDate      = "VAL001"
	CodeInvalidNumber    = "VAL002"
	CodeRequired         = "VAL003"
	CodeMissingColumn    = "VAL004"
	CodeInvalidEnum      = "VAL006"
	CodeInvalidID        = "VAL007"
	CodeInvalidBool      = "VAL008"
	CodeInvalidTime      = "VAL009"
	CodeInvalidEmail     = "VAL010"
	CodeInvalidPhone     = "VAL011"
	CodeTooLong          = "VAL012"
	CodeFormatting       = "VAL013"
	CodeInvalidOperation = "VAL014"
	CodeDuplicateKey     = "VAL015"
	CodeBusinessRule     = "VAL016"
	CodeUnresolvedRef    = "REF001"
)

// Finding is what a rule reports about a value.
type Finding struct {
	Severity       Severity
	Blocking       bool
	Message        string
	Suggestions    []string
	ExpectedFormat string
	Code           string
}

func (f Finding) entry(field, value string) ErrorEntry {
	e := ErrorEntry{
		FieldName:      field,
		Severity:       f.Severity,
		Message:        f.Message,
		Blocking:       f.Blocking,
		CurrentValue:   value,
		ExpectedFormat: f.ExpectedFormat,
		Code:           f.Code,
	}
	if len(f.Suggestions) > 0 {
		e.Suggestions = append([]string(nil), f.Suggestions...)
		e.SuggestedFix = f.Suggestions[0]
	}
	return e
}

// blockingError builds an ERROR finding that prevents import.
func blockingError(code, format string, args ...any) Finding {
	return Finding{
		Severity: SeverityError,
		Blocking: true,
		Message:  fmt.Sprintf(format, args...),
		Code:     code,
	}
}

// RuleContext is the read-only input a rule may consult besides the value.
type RuleContext struct {
	Catalog   *Catalog
	Entity    *EntityDefinition
	Field     FieldSpec
	Operation Operation
	// Present is false when the sheet has no column for the field.
	Present bool
	// Values holds the row's cells keyed by canonical field name.
	Values map[string]string
	Refs   ReferenceIndex
	Now    time.Time
}

// Rule validates one cell value.
type Rule func(value string, rc RuleContext) []Finding

type ruleKey struct {
	entity EntityType
	field  string
}

// RuleSet is a registry of rules keyed by (entity type, field name).
type RuleSet struct {
	mu    sync.RWMutex
	rules map[ruleKey][]Rule
}

// NewRuleSet returns an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: make(map[ruleKey][]Rule)}
}

// Register appends rules for an (entity, field) pair. Rules run in
// registration order.
func (rs *RuleSet) Register(entity EntityType, field string, rules ...Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	k := ruleKey{entity, field}
	rs.rules[k] = append(rs.rules[k], rules...)
}

// For returns the rules registered for an (entity, field) pair.
func (rs *RuleSet) For(entity EntityType, field string) []Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.rules[ruleKey{entity, field}]
}

// Len returns the total number of registered rules.
func (rs *RuleSet) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	n := 0
	for _, r := range rs.rules {
		n += len(r)
	}
	return n
}

// fieldRules derives the built-in rules for a field spec.
func fieldRules(def *EntityDefinition, f FieldSpec) []Rule {
	rules := []Rule{requiredRule}

	switch f.Type {
	case FieldID:
		rules = append(rules, idRule(def.IDPrefix))
	case FieldText:
		rules = append(rules, textRule)
	case FieldBool:
		rules = append(rules, boolRule)
	case FieldTime:
		rules = append(rules, timeRule)
	case FieldDate:
		rules = append(rules, dateRule)
	case FieldEmail:
		rules = append(rules, emailRule)
	case FieldPhone:
		rules = append(rules, phoneRule)
	case FieldInteger:
		rules = append(rules, integerRule)
	case FieldNumber:
		rules = append(rules, numberRule)
	case FieldEnum:
		rules = append(rules, enumRule)
	case FieldReference:
		rules = append(rules, referenceRule)
	case FieldOperation:
		rules = append(rules, operationRule)
	}

	if f.MaxLength > 0 {
		rules = append(rules, maxLengthRule(f.MaxLength))
	}
	return rules
}

// ============================================================================
// Presence
// ============================================================================

func requiredRule(value string, rc RuleContext) []Finding {
	if value != "" {
		return nil
	}
	isKey := rc.Field.Name == rc.Entity.KeyField
	if !rc.Field.Required && !isKey {
		return nil
	}
	if rc.Operation == OpDelete && !isKey {
		return nil
	}
	if !rc.Present {
		return []Finding{blockingError(CodeMissingColumn, "missing required column %q", rc.Field.Name)}
	}
	return []Finding{blockingError(CodeRequired, "%s: required field is empty", rc.Field.Name)}
}

// ============================================================================
// Identifiers and references
// ============================================================================

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// checkID reports whether id has the form <prefix>_<number>. When it does not
// but the intent is clear ("department 7", "7", "DEPARTMENT-7"), the
// canonical id is returned as a suggestion.
func checkID(prefix, id string) (ok bool, suggestion string) {
	if len(id) > len(prefix)+1 && strings.HasPrefix(id, prefix+"_") && allDigits(id[len(prefix)+1:]) {
		return true, ""
	}

	m := trailingDigits.FindStringSubmatch(id)
	if m == nil {
		return false, ""
	}
	head := strings.TrimSpace(strings.TrimSuffix(id, m[1]))
	head = strings.TrimRight(head, " _-#")
	if head == "" || normalizeName(head) == normalizeName(prefix) {
		return false, prefix + "_" + m[1]
	}
	return false, ""
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func idRule(prefix string) Rule {
	return func(value string, rc RuleContext) []Finding {
		if value == "" {
			return nil
		}
		ok, suggestion := checkID(prefix, value)
		if ok {
			return nil
		}
		f := blockingError(CodeInvalidID, "invalid identifier %q: expected %s_<number>", value, prefix)
		f.ExpectedFormat = prefix + "_<number>"
		if suggestion != "" {
			f.Suggestions = []string{suggestion}
		}
		return []Finding{f}
	}
}

func referencePrefix(rc RuleContext) string {
	if rc.Catalog != nil {
		if def, ok := rc.Catalog.Get(rc.Field.References); ok {
			return def.IDPrefix
		}
	}
	return string(rc.Field.References)
}

func referenceRule(value string, rc RuleContext) []Finding {
	if value == "" {
		return nil
	}
	target := rc.Field.References
	prefix := referencePrefix(rc)

	ids := []string{value}
	if rc.Field.List {
		ids = splitList(value)
	}

	fixed := make([]string, 0, len(ids))
	var bad []string
	fixable := true
	for _, id := range ids {
		ok, suggestion := checkID(prefix, id)
		switch {
		case ok:
			fixed = append(fixed, id)
		case suggestion != "":
			bad = append(bad, id)
			fixed = append(fixed, suggestion)
		default:
			bad = append(bad, id)
			fixable = false
		}
	}
	if len(bad) > 0 {
		f := blockingError(CodeInvalidID, "invalid reference %s: expected %s_<number>", strings.Join(bad, ", "), prefix)
		f.ExpectedFormat = prefix + "_<number>"
		if fixable {
			f.Suggestions = []string{strings.Join(fixed, ", ")}
		}
		return []Finding{f}
	}

	var findings []Finding
	var missing []string
	for _, id := range ids {
		if target == rc.Entity.Type && id == strings.TrimSpace(rc.Values[rc.Entity.KeyField]) {
			findings = append(findings, blockingError(CodeBusinessRule, "%s cannot reference itself", id))
			continue
		}
		if !rc.Refs.Has(target, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		findings = append(findings, Finding{
			Severity: SeverityInfo,
			Message: fmt.Sprintf("%s %s is not defined in this workbook; it will be checked against existing records at commit",
				target, strings.Join(missing, ", ")),
			Code: CodeUnresolvedRef,
		})
	}
	return findings
}

func operationRule(value string, rc RuleContext) []Finding {
	if _, ok := ParseOperation(value); ok {
		return nil
	}
	f := blockingError(CodeInvalidOperation, "unknown operation %q", value)
	f.ExpectedFormat = "ADD, UPDATE or DELETE"
	return []Finding{f}
}

// ============================================================================
// Scalar formats
// ============================================================================

func textRule(value string, rc RuleContext) []Finding {
	if value == "" {
		return nil
	}
	collapsed := strings.Join(strings.Fields(value), " ")
	if collapsed == value {
		return nil
	}
	return []Finding{{
		Severity:    SeverityWarning,
		Message:     fmt.Sprintf("%s contains repeated or non-space whitespace", rc.Field.Name),
		Suggestions: []string{collapsed},
		Code:        CodeFormatting,
	}}
}

func boolRule(value string, rc RuleContext) []Finding {
	if value == "" {
		return nil
	}
	b, canonical, ok := parseBool(value)
	if !ok {
		f := blockingError(CodeInvalidBool, "invalid boolean %q", value)
		f.ExpectedFormat = "true or false"
		return []Finding{f}
	}
	if canonical {
		return nil
	}
	return []Finding{{
		Severity:       SeverityWarning,
		Message:        fmt.Sprintf("%q will be imported as %t", value, b),
		Suggestions:    []string{strconv.FormatBool(b)},
		ExpectedFormat: "true or false",
		Code:           CodeFormatting,
	}}
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func timeRule(value string, rc RuleContext) []Finding {
	if value == "" || clockPattern.MatchString(value) {
		return nil
	}
	f := blockingError(CodeInvalidTime, "invalid time %q: expected HH:mm", value)
	f.ExpectedFormat = "HH:mm"
	if t, ok := parseClock(value); ok {
		f.Suggestions = []string{t.Format(ClockTime)}
	}
	return []Finding{f}
}

func dateRule(value string, rc RuleContext) []Finding {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(ISODate, value); err == nil {
		return nil
	}
	f := blockingError(CodeInvalidDate, "invalid date %q: expected YYYY-MM-DD", value)
	f.ExpectedFormat = "YYYY-MM-DD"
	now := rc.Now
	if now.IsZero() {
		now = time.Now()
	}
	if t, ok := parseDate(value, now); ok {
		f.Suggestions = []string{t.Format(ISODate)}
	}
	return []Finding{f}
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+'\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)

func emailRule(value string, rc RuleContext) []Finding {
	if value == "" {
		return nil
	}
	if emailPattern.MatchString(value) {
		if lower := strings.ToLower(value); lower != value {
			return []Finding{{
				Severity:    SeverityWarning,
				Message:     fmt.Sprintf("email %q will be stored in lower case", value),
				Suggestions: []string{lower},
				Code:        CodeFormatting,
			}}
		}
		return nil
	}

	f := blockingError(CodeInvalidEmail, "invalid email %q", value)
	f.ExpectedFormat = "name@example.com"

	candidate := strings.TrimPrefix(strings.ToLower(value), "mailto:")
	candidate = strings.Join(strings.Fields(candidate), "")
	candidate = strings.TrimRight(candidate, ".,;")
	if candidate != "" && emailPattern.MatchString(candidate) {
		f.Suggestions = []string{candidate}
	}
	return []Finding{f}
}

var phonePattern = regexp.MustCompile(`^\+?[0-9 ().\-]+$`)

func phoneDigits(value string) (string, int) {
	var b strings.Builder
	n := 0
	for i, r := range value {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String(), n
}

func phoneRule(value string, rc RuleContext) []Finding {
	if value == "" {
		return nil
	}
	digits, n := phoneDigits(value)
	if phonePattern.MatchString(value) && n >= 7 && n <= 15 {
		return nil
	}
	f := blockingError(CodeInvalidPhone, "invalid phone number %q", value)
	f.ExpectedFormat = "7-15 digits, optionally starting with +"
	if n >= 7 && n <= 15 {
		f.Suggestions = []string{digits}
	}
	return []Finding{f}
}

func integerRule(value string, rc RuleContext) []Finding {
	if value == "" {
		return nil
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return nil
	}
	f := blockingError(CodeInvalidNumber, "invalid number %q: expected a whole number", value)
	f.ExpectedFormat = "whole number"
	if n, ok := cleanNumber(value); ok {
		if fl, err := strconv.ParseFloat(n, 64); err == nil && fl == float64(int64(fl)) {
			f.Suggestions = []string{strconv.FormatInt(int64(fl), 10)}
		}
	}
	return []Finding{f}
}

func numberRule(value string, rc RuleContext) []Finding {
	if value == "" || numericRegex.MatchString(value) {
		return nil
	}
	f := blockingError(CodeInvalidNumber, "invalid number %q", value)
	f.ExpectedFormat = "decimal number"
	if n, ok := cleanNumber(value); ok {
		f.Suggestions = []string{n}
	}
	return []Finding{f}
}

// ============================================================================
// Enumerations
// ============================================================================

func enumKey(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// matchEnum finds the allowed value equal to s ignoring case and separators.
func matchEnum(values []string, s string) (string, bool) {
	key := enumKey(s)
	for _, v := range values {
		if enumKey(v) == key {
			return v, true
		}
	}
	return "", false
}

func enumRule(value string, rc RuleContext) []Finding {
	if value == "" {
		return nil
	}
	for _, v := range rc.Field.Values {
		if v == value {
			return nil
		}
	}
	expected := "one of: " + strings.Join(rc.Field.Values, ", ")

	if canonical, ok := matchEnum(rc.Field.Values, value); ok {
		return []Finding{{
			Severity:       SeverityWarning,
			Message:        fmt.Sprintf("%q will be imported as %q", value, canonical),
			Suggestions:    []string{canonical},
			ExpectedFormat: expected,
			Code:           CodeFormatting,
		}}
	}

	f := blockingError(CodeInvalidEnum, "invalid enum value %q for %s", value, rc.Field.Name)
	f.ExpectedFormat = expected
	if closest := closestValue(rc.Field.Values, value, 2); closest != "" {
		f.Suggestions = []string{closest}
	}
	return []Finding{f}
}

// closestValue returns the allowed value with the smallest edit distance to
// s, if that distance is at most maxDist and the match is unique.
func closestValue(values []string, s string, maxDist int) string {
	key := enumKey(s)
	best, bestDist, ties := "", maxDist+1, 0
	for _, v := range values {
		d := levenshtein(enumKey(v), key)
		switch {
		case d < bestDist:
			best, bestDist, ties = v, d, 0
		case d == bestDist:
			ties++
		}
	}
	if bestDist > maxDist || ties > 0 {
		return ""
	}
	return best
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// ============================================================================
// Length
// ============================================================================

func maxLengthRule(limit int) Rule {
	return func(value string, rc RuleContext) []Finding {
		if n := utf8.RuneCountInString(value); n > limit {
			return []Finding{blockingError(CodeTooLong, "%s exceeds %d characters (%d)", rc.Field.Name, limit, n)}
		}
		return nil
	}
}

// ============================================================================
// Reference index
// ============================================================================

// ReferenceIndex holds the ids each entity type defines in one workbook.
// It is built once before validation and only read afterwards.
type ReferenceIndex map[EntityType]map[string]struct{}

// Has reports whether the workbook defines id for the entity type.
func (ri ReferenceIndex) Has(t EntityType, id string) bool {
	ids, ok := ri[t]
	if !ok {
		return false
	}
	_, ok = ids[id]
	return ok
}

// BuildReferenceIndex collects the key of every ADD or UPDATE row. The
// operation is read from the row's cells, not from Row.Operation, which is
// only current after validation.
func BuildReferenceIndex(c *Catalog, sheets []*Sheet) ReferenceIndex {
	ri := make(ReferenceIndex)
	for _, sheet := range sheets {
		def, ok := c.Get(sheet.EntityType)
		if !ok {
			continue
		}
		opField, hasOp := def.OperationField()
		ids := ri[sheet.EntityType]
		if ids == nil {
			ids = make(map[string]struct{})
			ri[sheet.EntityType] = ids
		}
		for _, row := range sheet.Rows {
			op := row.Operation
			if hasOp {
				op, _ = ParseOperation(row.CellValues[opField.Name])
			}
			if op == OpDelete {
				continue
			}
			if id := row.Value(def.KeyField); id != "" {
				ids[id] = struct{}{}
			}
		}
	}
	return ri
}
