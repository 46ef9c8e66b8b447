package core

// convert.go turns raw cell text into canonical values.
//
// Spreadsheet cells arrive in every shape users can type:
//   - Multiple date formats (US, ISO, written month names)
//   - Times with seconds, AM/PM suffixes or no separator
//   - Currency symbols and thousand separators in numbers
//   - Various boolean representations (yes/no, y/n, 1/0)
//   - Excel formula prefixes (="value")
//
// The lenient parsers here never decide validity on their own. The rules in
// rules.go use them to derive suggestions, and the executor uses
// [typedValue] to build record payloads from values that already passed
// validation.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// ISODate and ClockTime are the canonical layouts stored in cells.
const (
	ISODate   = "2006-01-02"
	ClockTime = "15:04"
)

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006/01/02", "2006.01.02", "2006-1-2",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
		"20060102",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	timeLayouts = []string{
		"15:04:05", "3:04 PM", "3:04PM", "3:04:05 PM", "3 PM", "3PM", "15.04", "1504",
	}
)

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Replaces invalid UTF-8 sequences
// - Trims whitespace and byte order marks
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.ToValidUTF8(s, "\ufffd")
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// parseBool reads a boolean token. Only "true" and "false" (any case) are
// canonical; the remaining accepted tokens report canonical=false.
func parseBool(s string) (value, canonical, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true, true
	case "false":
		return false, true, true
	case "t", "yes", "y", "1", "on", "active":
		return true, false, true
	case "f", "no", "n", "0", "off", "inactive":
		return false, false, true
	default:
		return false, false, false
	}
}

// parseDate accepts the strict ISO layout and the lenient layouts.
// 2-digit years are resolved against TwoDigitYearPivot relative to now.
func parseDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(ISODate, s); err == nil {
		return t, true
	}

	// 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := now.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// parseClock accepts HH:mm and the lenient time layouts.
func parseClock(s string) (time.Time, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(ClockTime, s); err == nil {
		return t, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cleanNumber strips currency symbols, thousands separators and accounting
// parentheses. Returns the cleaned text and whether it is numeric.
func cleanNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "\u20ac", "") // Euro
	s = strings.ReplaceAll(s, "\u00a3", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// splitList splits a comma or semicolon separated cell into trimmed items.
func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// typedValue converts a validated cell to the value stored in a Record.
// Returns nil for empty cells.
func typedValue(f FieldSpec, raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}

	switch f.Type {
	case FieldBool:
		if b, _, ok := parseBool(v); ok {
			return b
		}
	case FieldInteger:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	case FieldNumber:
		if n, ok := cleanNumber(v); ok {
			if fl, err := strconv.ParseFloat(n, 64); err == nil {
				return fl
			}
		}
	case FieldEnum:
		if canonical, ok := matchEnum(f.Values, v); ok {
			return canonical
		}
	case FieldEmail:
		return strings.ToLower(v)
	case FieldReference:
		if f.List {
			return splitList(v)
		}
	}
	return v
}
