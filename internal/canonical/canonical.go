// Package canonical maps validated staged rows to the program's canonical participant format.
package canonical

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/partner-intake/internal/ingestion"
	"github.com/jonathan/partner-intake/internal/types"
)

// Canonical column names written ahead of partner-specific extras.
const (
	ColumnParticipantID = "participant_id"
	ColumnRecordKey     = "record_key"
)

// fieldOrder is the canonical ordering of known participant fields.
var fieldOrder = []string{
	"first_name", "last_name", "middle_name", "date_of_birth",
	"address_1", "address_2", "city", "state", "zip_code",
	"phone", "email", "gender", "ethnicity", "race", "disability", "veteran", "education_level",
	"training_start_date", "training_exit_date", "current_program_status", "completion_type",
	"noncompletion_reason", "noncompletion_other_specify",
	"employment_status", "employer_name", "employment_type", "job_start_date", "job_occupation", "hourly_earnings",
}

// recordNamespace scopes record keys so they never collide with other UUIDv5 users.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:partner-intake:participant"))

// Dataset is a canonicalized table.
type Dataset struct {
	Columns []string
	Records [][]string
}

// Canonicalize maps a staged table to canonical rows. Participant ids are P000001, P000002, ... in row order.
// The record key is a UUIDv5 of name and date of birth, so the same participant keeps the same key across files.
func Canonicalize(table *ingestion.StagedTable) (*Dataset, error) {
	if table == nil {
		return nil, fmt.Errorf("staged table is nil")
	}

	columns := []string{ColumnParticipantID, ColumnRecordKey}
	seen := map[string]bool{}
	for _, f := range fieldOrder {
		if table.HasKey(f) {
			columns = append(columns, f)
			seen[f] = true
		}
	}
	for _, k := range table.Keys {
		if k != "" && !seen[k] && k != ColumnParticipantID && k != ColumnRecordKey {
			columns = append(columns, k)
			seen[k] = true
		}
	}

	ds := &Dataset{Columns: columns}
	for i := range table.Rows {
		rec := make([]string, len(columns))
		rec[0] = fmt.Sprintf("P%06d", i+1)
		rec[1] = RecordKey(table.Value(i, "first_name"), table.Value(i, "last_name"), table.Value(i, "date_of_birth"))
		for c := 2; c < len(columns); c++ {
			rec[c] = table.Value(i, columns[c])
			if columns[c] == "zip_code" && len(rec[c]) == 10 && rec[c][5] == '-' {
				rec[c] = rec[c][:5]
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

// RecordKey derives the stable participant key.
func RecordKey(first, last, dob string) string {
	name := strings.ToLower(strings.TrimSpace(first)) + "|" +
		strings.ToLower(strings.TrimSpace(last)) + "|" + strings.TrimSpace(dob)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// Result converts a dataset into the tool-call result.
func Result(ds *Dataset) *types.ToolResult {
	return types.Succeeded(fmt.Sprintf("Canonicalized %d records", len(ds.Records)), map[string]any{
		"record_count": len(ds.Records),
		"columns":      ds.Columns,
	})
}

// WriteCSV writes the dataset to path, creating parent directories.
func WriteCSV(path string, ds *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ds.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(ds.Records); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return f.Close()
}
