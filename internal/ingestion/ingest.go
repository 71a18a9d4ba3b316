// Package ingestion parses partner upload files (CSV or Excel) into staged tables.
package ingestion

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/xuri/excelize/v2"
)

// headerProbeBytes bounds how much of a CSV file ReadHeader looks at.
const headerProbeBytes = 64 * 1024

var zipFloatSuffix = regexp.MustCompile(`\.0+$`)

// StagedTable is a parsed partner file held in memory for validation and canonicalization.
type StagedTable struct {
	SourcePath string
	Encoding   string
	FileHash   string     // SHA-256 of the raw file
	Headers    []string   // as written by the partner, trimmed
	Keys       []string   // normalized or mapped keys, parallel to Headers
	Rows       [][]string // data rows, each padded to len(Headers)
}

// RowCount returns the number of data rows.
func (t *StagedTable) RowCount() int {
	return len(t.Rows)
}

// Index returns the column index of key, or -1.
func (t *StagedTable) Index(key string) int {
	for i, k := range t.Keys {
		if k == key {
			return i
		}
	}
	return -1
}

// HasKey reports whether the table has a column for key.
func (t *StagedTable) HasKey(key string) bool {
	return t.Index(key) >= 0
}

// Value returns the trimmed cell for a 0-based data row and key, or "" when absent.
func (t *StagedTable) Value(row int, key string) string {
	i := t.Index(key)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][i]
}

// Result converts the table into the tool-call result. Only metadata is included.
func (t *StagedTable) Result() *types.ToolResult {
	return types.Succeeded(fmt.Sprintf("Ingested %d rows from %s", t.RowCount(), filepath.Base(t.SourcePath)),
		map[string]any{
			"row_count": t.RowCount(),
			"file_hash": t.FileHash,
			"encoding":  t.Encoding,
			"columns":   t.Keys,
		})
}

// IsSupported reports whether the file extension is one the ingester can parse.
func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// IngestPartnerFile parses a partner file according to its parsing configuration.
func IngestPartnerFile(path string, parsing *config.PartnerParsing) (*StagedTable, error) {
	if parsing == nil {
		parsing = config.DefaultPartnerParsing("default")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupported(path) {
		return nil, &UnsupportedFormatError{Path: path, Ext: ext}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Message: "failed to read file", Cause: err}
	}

	var records [][]string
	encodingUsed := "xlsx"
	if ext == ".csv" {
		text, used, err := decode(data, parsing.FileStructure.EncodingPreferences)
		if err != nil {
			return nil, &Error{Path: path, Message: "encoding detection failed", Cause: err}
		}
		encodingUsed = used
		records, err = parseCSV(text, parsing.FileStructure.Delimiter, -1)
		if err != nil {
			return nil, &Error{Path: path, Message: "failed to parse CSV", Cause: err}
		}
	} else {
		records, err = readWorkbook(path)
		if err != nil {
			return nil, &Error{Path: path, Message: "failed to read workbook", Cause: err}
		}
	}

	table, err := buildTable(records, parsing)
	if err != nil {
		return nil, &Error{Path: path, Message: "invalid file structure", Cause: err}
	}

	sum := sha256.Sum256(data)
	table.SourcePath = path
	table.Encoding = encodingUsed
	table.FileHash = hex.EncodeToString(sum[:])
	return table, nil
}

// ReadHeader returns the normalized header keys of a file without reading its data rows.
func ReadHeader(path string, parsing *config.PartnerParsing) ([]string, error) {
	if parsing == nil {
		parsing = config.DefaultPartnerParsing("default")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupported(path) {
		return nil, &UnsupportedFormatError{Path: path, Ext: ext}
	}
	headerRow := parsing.FileStructure.HeaderRow

	var headers []string
	if ext == ".csv" {
		probe, err := readPrefix(path, headerProbeBytes)
		if err != nil {
			return nil, &Error{Path: path, Message: "failed to read file", Cause: err}
		}
		text, _, err := decode(probe, parsing.FileStructure.EncodingPreferences)
		if err != nil {
			return nil, &Error{Path: path, Message: "encoding detection failed", Cause: err}
		}
		records, err := parseCSV(text, parsing.FileStructure.Delimiter, headerRow)
		if err != nil {
			return nil, &Error{Path: path, Message: "failed to parse CSV header", Cause: err}
		}
		if len(records) >= headerRow {
			headers = records[headerRow-1]
		}
	} else {
		var err error
		headers, err = readWorkbookRow(path, headerRow)
		if err != nil {
			return nil, &Error{Path: path, Message: "failed to read workbook header", Cause: err}
		}
	}

	headers = trimHeaders(headers)
	if len(headers) == 0 {
		return nil, &Error{Path: path, Message: "header row is empty"}
	}
	return normalizedKeys(headers, parsing.ColumnMappings), nil
}

// readPrefix reads up to limit bytes, cut back to the last complete line when the file is longer.
func readPrefix(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]
	if n == limit {
		if i := bytes.LastIndexByte(buf, '\n'); i > 0 {
			buf = buf[:i+1]
		}
	}
	return buf, nil
}

// parseCSV reads CSV text. maxRecords <= 0 reads everything.
func parseCSV(text, delimiter string, maxRecords int) ([][]string, error) {
	comma := ','
	if delimiter != "" {
		comma = []rune(delimiter)[0]
	} else {
		firstLine := text
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			firstLine = text[:i]
		}
		comma = sniffDelimiter(firstLine)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for maxRecords <= 0 || len(records) < maxRecords {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func readWorkbookRow(path string, rowNumber int) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for i := 1; rows.Next(); i++ {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		if i == rowNumber {
			return cols, nil
		}
	}
	return nil, nil
}

// trimHeaders trims each header and drops trailing empty columns.
func trimHeaders(headers []string) []string {
	out := make([]string, len(headers))
	width := 0
	for i, h := range headers {
		out[i] = strings.TrimSpace(h)
		if out[i] != "" {
			width = i + 1
		}
	}
	return out[:width]
}

func buildTable(records [][]string, parsing *config.PartnerParsing) (*StagedTable, error) {
	headerIdx := parsing.FileStructure.HeaderRow - 1
	dataIdx := parsing.FileStructure.DataStartRow - 1
	if len(records) <= headerIdx {
		return nil, fmt.Errorf("file has no header row %d", headerIdx+1)
	}

	headers := trimHeaders(records[headerIdx])
	if len(headers) == 0 {
		return nil, fmt.Errorf("header row %d is empty", headerIdx+1)
	}
	keys := normalizedKeys(headers, parsing.ColumnMappings)

	table := &StagedTable{Headers: headers, Keys: keys}
	for r := dataIdx; r < len(records); r++ {
		row := make([]string, len(headers))
		blank := true
		for c := range row {
			if c < len(records[r]) {
				row[c] = strings.TrimSpace(records[r][c])
			}
			if row[c] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		for c, key := range keys {
			if strings.Contains(key, "zip") {
				row[c] = zipFloatSuffix.ReplaceAllString(row[c], "")
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
