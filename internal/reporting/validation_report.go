package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jonathan/partner-intake/internal/types"
)

// ValidationReportColumns is the header of validation_report.csv.
var ValidationReportColumns = []string{"row_index", "field", "severity", "message"}

// WriteValidationReport writes the redacted violation list as CSV. It never contains cell values.
func WriteValidationReport(path string, violations types.Violations) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ValidationReportColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, v := range violations.Violations {
		if err := w.Write([]string{strconv.Itoa(v.RowIndex), v.Field, string(v.Severity), v.Message}); err != nil {
			return fmt.Errorf("failed to write violation: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush validation report: %w", err)
	}
	return f.Close()
}
