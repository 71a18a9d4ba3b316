package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jonathan/partner-intake/internal/ingestion"
	"github.com/jonathan/partner-intake/internal/types"
)

var (
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	poBoxPattern = regexp.MustCompile(`(?i)\b(p\.?\s*o\.?\s*box|post\s+office\s+box)\b`)
)

// Validator applies a RuleSet to staged tables.
type Validator struct {
	rules *RuleSet
	now   func() time.Time
}

// NewValidator creates a Validator. A nil rule set uses DefaultRules; a nil clock uses time.Now.
func NewValidator(rules *RuleSet, now func() time.Time) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{rules: rules, now: now}
}

// Validate checks every row of the table. Violations carry only metadata, never cell values.
// Row indexes are 1-based data rows; missing required columns are reported once at file level.
func (v *Validator) Validate(table *ingestion.StagedTable) types.Violations {
	var out []types.Violation
	add := func(row int, field string, sev types.Severity, format string, args ...any) {
		out = append(out, types.Violation{RowIndex: row, Field: field, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	for _, field := range v.rules.RequiredFields {
		if !table.HasKey(field) {
			add(types.FileLevelRow, field, types.SeverityError, "Required field %s is missing from file", field)
		}
	}

	today := truncateDay(v.now())
	names := v.rules.fieldNames()

	for i := range table.Rows {
		row := i + 1
		value := func(field string) string { return table.Value(i, field) }

		for _, field := range v.rules.RequiredFields {
			if table.HasKey(field) && value(field) == "" {
				add(row, field, types.SeverityError, "Required field %s is empty", field)
			}
		}

		conditional := make(map[string]bool)
		for _, field := range names {
			if !table.HasKey(field) {
				continue
			}
			rule := v.rules.Fields[field]
			val := value(field)

			if c := rule.ConditionalRequired; c != nil && c.holds(value(c.Field)) {
				conditional[field] = true
				if val == "" {
					add(row, field, types.SeverityError, "Field %s is required when %s", field, c.describe())
				}
			}
			if val == "" {
				continue
			}

			if len(rule.ValidValues) > 0 && !containsFold(rule.ValidValues, val) {
				add(row, field, types.SeverityError, "Field %s is not an approved value", field)
			}
			if rule.Date != nil {
				v.checkDate(row, field, val, value, rule.Date, today, add)
			}
			if rule.Zip != nil {
				checkZip(row, field, val, value, rule.Zip, add)
			}
			if rule.NoPOBox && poBoxPattern.MatchString(val) {
				add(row, field, types.SeverityError, "PO boxes are not accepted in %s", field)
			}
		}

		if a := v.rules.ActivePastGraduation; a != nil && table.HasKey(a.StatusField) && table.HasKey(a.ExitDateField) {
			status := strings.ToLower(value(a.StatusField))
			if strings.Contains(status, "active") && !strings.Contains(status, "inactive") {
				if exit, ok := parseDate(value(a.ExitDateField), layoutFor(v.rules.Fields[a.ExitDateField].Date)); ok && exit.Before(today) {
					add(row, a.StatusField, types.SeverityError, "Participant marked active past graduation date")
				}
			}
		}

		if v.rules.WarnEmptyOptional {
			for _, field := range table.Keys {
				if field == "" || v.rules.isRequired(field) || conditional[field] {
					continue
				}
				if value(field) == "" {
					add(row, field, types.SeverityWarning, "Optional field %s is empty", field)
				}
			}
		}
	}

	return types.Violations{Violations: out}
}

func (v *Validator) checkDate(row int, field, val string, value func(string) string, rule *DateRule, today time.Time,
	add func(int, string, types.Severity, string, ...any)) {
	layout := layoutFor(rule)
	d, ok := parseDate(val, layout)
	if !ok {
		add(row, field, types.SeverityError, "Field %s must be a date in MM/DD/YYYY format", field)
		return
	}
	if rule.MinYear > 0 && d.Year() < rule.MinYear {
		add(row, field, types.SeverityError, "Field %s must not be before %d", field, rule.MinYear)
	}
	if rule.NotFuture && d.After(today) {
		add(row, field, types.SeverityError, "Field %s cannot be in the future", field)
	}
	if rule.BeforeToday && !d.Before(today) {
		add(row, field, types.SeverityError, "Field %s must be earlier than today", field)
	}
	if rule.After != "" {
		if other, ok := parseDate(value(rule.After), layoutFor(v.rules.Fields[rule.After].Date)); ok && !d.After(other) {
			add(row, field, types.SeverityError, "Field %s must be after %s", field, rule.After)
		}
	}
}

func checkZip(row int, field, val string, value func(string) string, rule *ZipRule,
	add func(int, string, types.Severity, string, ...any)) {
	if val == "00000" || val == "00000-0000" {
		add(row, field, types.SeverityError, "Invalid zip code: all zeros")
		return
	}
	if !zipPattern.MatchString(val) {
		add(row, field, types.SeverityError, "Invalid zip code format: must be 5 digits or 5+4 format (e.g., 12345 or 12345-6789).")
		return
	}
	if len(val) > 5 {
		add(row, field, types.SeverityWarning, "ZIP+4 provided; only the first 5 digits are kept.")
	}
	if rule.StateField == "" {
		return
	}
	state := strings.ToUpper(value(rule.StateField))
	prefixes, ok := rule.StatePrefixes[state]
	if !ok {
		return
	}
	for _, p := range prefixes {
		if strings.HasPrefix(val, p) {
			return
		}
	}
	add(row, field, types.SeverityWarning, "Zip code may not match %s state (%s zips typically start with %s).",
		state, state, strings.Join(prefixes, " or "))
}

// Result converts violations into the tool-call result: OK when there are no errors.
func Result(violations types.Violations) *types.ToolResult {
	errorCount, warningCount := violations.ErrorCount(), violations.WarningCount()
	res := &types.ToolResult{
		OK:      errorCount == 0,
		Summary: fmt.Sprintf("Validation complete: %d errors, %d warnings", errorCount, warningCount),
		Data: map[string]any{
			"violations":       violations.Violations,
			"error_count":      errorCount,
			"warning_count":    warningCount,
			"total_violations": len(violations.Violations),
		},
	}
	if warningCount > 0 {
		res.Warnings = []string{fmt.Sprintf("%d warnings found", warningCount)}
	}
	if errorCount > 0 {
		res.Blockers = []string{fmt.Sprintf("%d errors found", errorCount)}
	}
	return res
}

// Check returns a *BlockerError when violations contain errors.
func Check(violations types.Violations) error {
	if n := violations.ErrorCount(); n > 0 {
		return &BlockerError{ErrorCount: n, WarningCount: violations.WarningCount()}
	}
	return nil
}

func layoutFor(rule *DateRule) string {
	if rule == nil || rule.Layout == "" {
		return DefaultDateLayout
	}
	return rule.Layout
}

func parseDate(val, layout string) (time.Time, bool) {
	if val == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(layout, strings.TrimSpace(val))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func containsFold(values []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
