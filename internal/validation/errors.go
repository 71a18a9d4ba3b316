// Package validation checks staged partner data against a YAML rule set and reports row-level violations.
package validation

import "fmt"

// Error represents a general validation error, such as an unreadable rule set.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// BlockerError reports that staged data carries Error-severity violations.
// It starts a correction cycle; it is never a crash.
type BlockerError struct {
	ErrorCount   int
	WarningCount int
}

func (e *BlockerError) Error() string {
	return fmt.Sprintf("validation blocked: %d errors found", e.ErrorCount)
}
