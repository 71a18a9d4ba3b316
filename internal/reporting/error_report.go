package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonathan/partner-intake/internal/canonical"
	"github.com/jonathan/partner-intake/internal/ingestion"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/xuri/excelize/v2"
)

// Sheet names in the partner error report.
const (
	DataSheet       = "Data"
	ViolationsSheet = "Violations"
	QuarterlySheet  = "Quarterly Updates"
	ErrorsColumn    = "Errors"
)

const otherServicesPrompt = `If there are "other" wraparound services, please specify`

// Cell fills by severity.
const (
	errorFill   = "FFC7CE"
	warningFill = "FFEB9C"
)

// ErrorReport summarizes a written partner error report.
type ErrorReport struct {
	Path          string
	TotalRows     int
	ErrorRowCount int
}

// Result converts the report into the tool-call result.
func (r *ErrorReport) Result() *types.ToolResult {
	return types.Succeeded(
		fmt.Sprintf("Generated error report Excel file with %d total rows (%d with errors)", r.TotalRows, r.ErrorRowCount),
		map[string]any{
			"error_report_path": r.Path,
			"error_row_count":   r.ErrorRowCount,
			"total_row_count":   r.TotalRows,
		})
}

// WriteErrorReport renders the partner error report workbook. The Data sheet holds every staged row
// with offending cells highlighted and an Errors column; the Violations sheet lists every finding,
// including file-level ones. With aggregates, a Quarterly Updates sheet shows wraparound usage and leaves
// the funding amounts for the partner to fill in. The workbook contains partner data and is shared only
// through a secure link.
func WriteErrorReport(path string, table *ingestion.StagedTable, violations types.Violations, agg *canonical.Aggregates) (*ErrorReport, error) {
	if table == nil {
		table = &ingestion.StagedTable{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), DataSheet); err != nil {
		return nil, fmt.Errorf("failed to name data sheet: %w", err)
	}
	styles, err := newReportStyles(f)
	if err != nil {
		return nil, err
	}

	if err := writeDataSheet(f, styles, table, violations); err != nil {
		return nil, err
	}
	if err := writeViolationsSheet(f, styles, violations); err != nil {
		return nil, err
	}
	if agg != nil {
		if err := writeQuarterlySheet(f, styles, agg); err != nil {
			return nil, err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("failed to save error report: %w", err)
	}
	return &ErrorReport{
		Path:          path,
		TotalRows:     table.RowCount(),
		ErrorRowCount: len(violations.ErrorRows()),
	}, nil
}

type reportStyles struct {
	header  int
	error   int
	warning int
}

func newReportStyles(f *excelize.File) (*reportStyles, error) {
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	errStyle, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{errorFill}, Pattern: 1}})
	if err != nil {
		return nil, fmt.Errorf("failed to create error style: %w", err)
	}
	warnStyle, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{warningFill}, Pattern: 1}})
	if err != nil {
		return nil, fmt.Errorf("failed to create warning style: %w", err)
	}
	return &reportStyles{header: header, error: errStyle, warning: warnStyle}, nil
}

func writeDataSheet(f *excelize.File, styles *reportStyles, table *ingestion.StagedTable, violations types.Violations) error {
	header := make([]any, 0, len(table.Headers)+1)
	for _, h := range table.Headers {
		header = append(header, h)
	}
	header = append(header, ErrorsColumn)
	if err := setRow(f, DataSheet, 1, header); err != nil {
		return err
	}
	if err := styleRow(f, DataSheet, 1, len(header), styles.header); err != nil {
		return err
	}

	for i, row := range table.Rows {
		dataRow := i + 1
		excelRow := dataRow + 1
		values := make([]any, 0, len(row)+1)
		for _, cell := range row {
			values = append(values, cell)
		}

		found := violations.ForRow(dataRow)
		var messages []string
		for _, v := range found {
			messages = append(messages, fmt.Sprintf("%s: %s", v.Severity, v.Message))
		}
		values = append(values, strings.Join(messages, "; "))
		if err := setRow(f, DataSheet, excelRow, values); err != nil {
			return err
		}

		// Errors win over warnings on the same cell.
		sort.SliceStable(found, func(a, b int) bool { return found[a].Severity == types.SeverityWarning && found[b].Severity == types.SeverityError })
		for _, v := range found {
			col := table.Index(v.Field)
			if col < 0 {
				continue
			}
			style := styles.warning
			if v.Severity == types.SeverityError {
				style = styles.error
			}
			cell, err := excelize.CoordinatesToCellName(col+1, excelRow)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(DataSheet, cell, cell, style); err != nil {
				return fmt.Errorf("failed to style %s: %w", cell, err)
			}
		}
	}
	return nil
}

func writeViolationsSheet(f *excelize.File, styles *reportStyles, violations types.Violations) error {
	if _, err := f.NewSheet(ViolationsSheet); err != nil {
		return fmt.Errorf("failed to create violations sheet: %w", err)
	}
	if err := setRow(f, ViolationsSheet, 1, []any{"Row", "Field", "Severity", "Message"}); err != nil {
		return err
	}
	if err := styleRow(f, ViolationsSheet, 1, 4, styles.header); err != nil {
		return err
	}
	for i, v := range violations.Violations {
		row := "file"
		if v.RowIndex != types.FileLevelRow {
			row = fmt.Sprintf("%d", v.RowIndex)
		}
		if err := setRow(f, ViolationsSheet, i+2, []any{row, v.Field, string(v.Severity), v.Message}); err != nil {
			return err
		}
	}
	return nil
}

func writeQuarterlySheet(f *excelize.File, styles *reportStyles, agg *canonical.Aggregates) error {
	if _, err := f.NewSheet(QuarterlySheet); err != nil {
		return fmt.Errorf("failed to create quarterly sheet: %w", err)
	}
	sections := []struct {
		question string
		column   string
		value    func(canonical.ServiceUsage) any
	}{
		{"How many GJC Participants used each type of wraparound service in the past quarter?", "Number of Participants",
			func(u canonical.ServiceUsage) any { return u.Count }},
		{"What was the amount of GJC funds spent on each type of service?", "Amount of GJC funds",
			func(canonical.ServiceUsage) any { return "" }},
		{"What was the amount of non-GJC funds spent on each type of service?", "Amount of non-GJC funds",
			func(canonical.ServiceUsage) any { return "" }},
	}

	row := 1
	for i, sec := range sections {
		if i > 0 {
			row++
		}
		if err := setRow(f, QuarterlySheet, row, []any{sec.question}); err != nil {
			return err
		}
		row++
		if err := setRow(f, QuarterlySheet, row, []any{"Service Type", sec.column}); err != nil {
			return err
		}
		if err := styleRow(f, QuarterlySheet, row, 2, styles.header); err != nil {
			return err
		}
		row++
		for _, u := range agg.Wraparound {
			if err := setRow(f, QuarterlySheet, row, []any{u.Name, sec.value(u)}); err != nil {
				return err
			}
			row++
		}
		if err := setRow(f, QuarterlySheet, row, []any{otherServicesPrompt, ""}); err != nil {
			return err
		}
		row++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, width, style int) error {
	if width == 0 {
		return nil
	}
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(width, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, first, last, style)
}
