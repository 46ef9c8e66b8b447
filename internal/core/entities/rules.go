package entities

// Cross-field rules. Each runs on one cell but may read the rest of the
// row; format problems are left to the built-in field rules, so these only
// fire when the values involved are well formed.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/RosterImport/internal/core"
)

var clock = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func registerRules(c *core.Catalog) {
	c.AddRule("SHIFT", "End Time", shiftEnd)
	c.AddRule("WORKING_PERIOD", "End Date", dateOrder("Start Date"))
	c.AddRule("CONSTRAINT_OVERRIDE", "End Date", dateOrder("Start Date"))
	c.AddRule("DAY_OFF_RULE", "Date", dayOffTarget)
	c.AddRule("SQUAD_WORKING_PATTERN", "Pattern", patternLength)
}

func businessError(format string, args ...any) core.Finding {
	return core.Finding{
		Severity: core.SeverityError,
		Blocking: true,
		Message:  fmt.Sprintf(format, args...),
		Code:     core.CodeBusinessRule,
	}
}

// shiftEnd rejects zero-length shifts and notes overnight ones.
func shiftEnd(value string, rc core.RuleContext) []core.Finding {
	start := strings.TrimSpace(rc.Values["Start Time"])
	if !clock.MatchString(value) || !clock.MatchString(start) {
		return nil
	}
	switch {
	case value == start:
		return []core.Finding{businessError("End Time must differ from Start Time (%s)", start)}
	case value < start:
		return []core.Finding{{
			Severity: core.SeverityInfo,
			Message:  fmt.Sprintf("shift runs overnight, ending at %s the next day", value),
			Code:     core.CodeBusinessRule,
		}}
	}
	return nil
}

func dateOrder(startField string) core.Rule {
	return func(value string, rc core.RuleContext) []core.Finding {
		end, err := time.Parse(core.ISODate, value)
		if err != nil {
			return nil
		}
		start, err := time.Parse(core.ISODate, strings.TrimSpace(rc.Values[startField]))
		if err != nil {
			return nil
		}
		if end.Before(start) {
			return []core.Finding{businessError("%s %s is before %s %s", rc.Field.Name, value, startField, start.Format(core.ISODate))}
		}
		return nil
	}
}

// dayOffTarget requires either a weekday or a date.
func dayOffTarget(value string, rc core.RuleContext) []core.Finding {
	if value != "" || strings.TrimSpace(rc.Values["Day Of Week"]) != "" {
		return nil
	}
	f := businessError("either Day Of Week or Date is required")
	f.ExpectedFormat = "a weekday or YYYY-MM-DD"
	return []core.Finding{f}
}

// patternLength checks the pattern covers exactly one cycle.
func patternLength(value string, rc core.RuleContext) []core.Finding {
	cycle := strings.TrimSpace(rc.Values["Cycle Length Days"])
	days, err := strconv.Atoi(cycle)
	if err != nil || days <= 0 || value == "" {
		return nil
	}
	if n := len([]rune(value)); n != days {
		return []core.Finding{businessError("Pattern has %d days but Cycle Length Days is %d", n, days)}
	}
	return nil
}
