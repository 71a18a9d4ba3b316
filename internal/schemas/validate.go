// Package schemas provides JSON Schema validation for evidence bundle documents.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	schemafiles "github.com/jonathan/partner-intake/schemas"
	"github.com/xeipuuv/gojsonschema"
)

// Document names one of the embedded schemas.
type Document string

const (
	DocumentManifest      Document = "manifest.schema.json"
	DocumentResumeState   Document = "resume_state.schema.json"
	DocumentToolCallEvent Document = "tool_call_event.schema.json"
	DocumentViolations    Document = "violations.schema.json"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

var compiled sync.Map // Document -> *gojsonschema.Schema

func loadDocumentSchema(doc Document) (*gojsonschema.Schema, error) {
	if cached, ok := compiled.Load(doc); ok {
		return cached.(*gojsonschema.Schema), nil
	}

	raw, err := schemafiles.Files.ReadFile(string(doc))
	if err != nil {
		return nil, &SchemaLoadError{Path: string(doc), Message: "embedded schema not found", Cause: err}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &SchemaLoadError{Path: string(doc), Message: "schema failed to compile", Cause: err}
	}

	actual, _ := compiled.LoadOrStore(doc, schema)
	return actual.(*gojsonschema.Schema), nil
}

// ValidateDocument validates JSON content against one of the embedded evidence schemas.
func ValidateDocument(doc Document, jsonContent []byte) error {
	schema, err := loadDocumentSchema(doc)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonContent))
	if err != nil {
		return fmt.Errorf("failed to load %s document: %w", doc, err)
	}
	return toValidationError(result)
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}
	return toValidationError(result)
}

func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
