package evidence

import "fmt"

// WriteError is an I/O failure while persisting part of the evidence bundle. The recorder logs and
// swallows it; it never aborts a pipeline pass.
type WriteError struct {
	Path  string
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write evidence %s: %v", e.Path, e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}
