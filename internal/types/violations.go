// Package types provides type definitions for structured data shared across the partner intake system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Severity grades a validation finding.
type Severity string

const (
	// SeverityError blocks canonicalization and starts a correction cycle.
	SeverityError Severity = "Error"
	// SeverityWarning is reported to the partner but never blocks.
	SeverityWarning Severity = "Warning"
)

// FileLevelRow marks a violation that applies to the whole file rather than a row.
const FileLevelRow = -1

// Violation represents a single validation failure. It carries metadata only, never raw field values.
type Violation struct {
	RowIndex int      `json:"row_index"` // 1-based data row; FileLevelRow for file-wide problems
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Violations represents a collection of validation failures
type Violations struct {
	Violations []Violation `json:"violations"`
}

// ErrorCount returns the number of Error-severity violations.
func (v Violations) ErrorCount() int {
	n := 0
	for _, item := range v.Violations {
		if item.Severity == SeverityError {
			n++
		}
	}
	return n
}

// WarningCount returns the number of Warning-severity violations.
func (v Violations) WarningCount() int {
	n := 0
	for _, item := range v.Violations {
		if item.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// ErrorRows returns the set of data rows that carry at least one error.
func (v Violations) ErrorRows() map[int]bool {
	rows := make(map[int]bool)
	for _, item := range v.Violations {
		if item.Severity == SeverityError && item.RowIndex != FileLevelRow {
			rows[item.RowIndex] = true
		}
	}
	return rows
}

// ForRow returns the violations recorded against a single row.
func (v Violations) ForRow(row int) []Violation {
	var out []Violation
	for _, item := range v.Violations {
		if item.RowIndex == row {
			out = append(out, item)
		}
	}
	return out
}
