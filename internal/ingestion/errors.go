package ingestion

import "fmt"

// Error represents a failure to read a partner file. It is fatal to the current pass.
type Error struct {
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ingestion error for %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("ingestion error for %s: %s", e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// UnsupportedFormatError indicates a file extension the ingester cannot parse.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("file format %q not supported for %s: expected CSV or Excel", e.Ext, e.Path)
}
