package canonical

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/partner-intake/internal/ingestion"
	"github.com/jonathan/partner-intake/internal/types"
)

// ErrEmptyTable is returned when there are no rows to aggregate.
var ErrEmptyTable = errors.New("staged table has no rows")

// WraparoundService is one reportable wraparound service and the letter partners use for it.
type WraparoundService struct {
	Code string
	Type string
	Name string
}

// WraparoundServices lists the services in reporting order.
var WraparoundServices = []WraparoundService{
	{Code: "a", Type: "transportation", Name: "Transportation"},
	{Code: "b", Type: "childcare", Name: "Childcare"},
	{Code: "c", Type: "career_services_and_learning_materials", Name: "Career services and learning materials"},
	{Code: "d", Type: "mental_health_services", Name: "Mental health services"},
	{Code: "e", Type: "life_skills", Name: "Life skills"},
	{Code: "f", Type: "navigation", Name: "Navigation"},
	{Code: "g", Type: "other", Name: "Other"},
}

// Column candidates, in key form. Exact matches win over partial ones.
var (
	firstNameColumns  = []string{"first_name"}
	lastNameColumns   = []string{"last_name"}
	birthDateColumns  = []string{"date_of_birth", "dob"}
	statusColumns     = []string{"current_program_status", "program_status"}
	employmentColumns = []string{"employment_status"}
	wraparoundColumns = []string{"wraparound_services_provided_this_quarter", "wraparound"}
)

// StatusBreakdown counts rows by program status.
type StatusBreakdown struct {
	Active    int `json:"active"`
	Graduated int `json:"graduated"`
	Withdrawn int `json:"withdrawn"`
}

// ServiceUsage is the number of times a wraparound service was reported this quarter.
type ServiceUsage struct {
	Type  string `json:"service_type"`
	Name  string `json:"service_name"`
	Count int    `json:"count"`
}

// Aggregates are the quarterly totals staff check before anything is reported upstream.
type Aggregates struct {
	Participants         int             `json:"total_participants"`
	Enrollments          int             `json:"total_enrollments"`
	EmploymentPlacements int             `json:"total_employment_placements"`
	Status               StatusBreakdown `json:"status_breakdown"`
	EmploymentStatus     map[string]int  `json:"employment_status_breakdown"`
	Wraparound           []ServiceUsage  `json:"wraparound_services"`
}

// WraparoundUsed reports whether any wraparound service was reported.
func (a *Aggregates) WraparoundUsed() bool {
	for _, u := range a.Wraparound {
		if u.Count > 0 {
			return true
		}
	}
	return false
}

// Result converts the aggregates into the tool-call result.
func (a *Aggregates) Result() *types.ToolResult {
	return types.Succeeded(
		fmt.Sprintf("Collected aggregates: %d participants, %d enrollments, %d employment placements",
			a.Participants, a.Enrollments, a.EmploymentPlacements),
		map[string]any{
			"total_participants":          a.Participants,
			"total_enrollments":           a.Enrollments,
			"total_employment_placements": a.EmploymentPlacements,
		})
}

// CollectAggregates totals a staged table. Every row is an enrollment; participants are distinct by
// name and date of birth, falling back to the row count when any of those columns is missing.
func CollectAggregates(table *ingestion.StagedTable) (*Aggregates, error) {
	if table == nil || table.RowCount() == 0 {
		return nil, ErrEmptyTable
	}

	first := findColumn(table, firstNameColumns)
	last := findColumn(table, lastNameColumns)
	dob := findColumn(table, birthDateColumns)
	status := findColumn(table, statusColumns)
	employment := findColumn(table, employmentColumns)
	wraparound := findColumn(table, wraparoundColumns)

	a := &Aggregates{
		Enrollments:      table.RowCount(),
		Participants:     table.RowCount(),
		EmploymentStatus: map[string]int{},
	}
	if first >= 0 && last >= 0 && dob >= 0 {
		seen := make(map[string]struct{}, table.RowCount())
		for _, row := range table.Rows {
			seen[RecordKey(row[first], row[last], row[dob])] = struct{}{}
		}
		a.Participants = len(seen)
	}

	usage := make(map[string]int, len(WraparoundServices))
	for _, row := range table.Rows {
		if status >= 0 {
			countStatus(&a.Status, strings.ToLower(row[status]))
		}
		if employment >= 0 {
			value := strings.ToLower(strings.TrimSpace(row[employment]))
			if value != "" {
				a.EmploymentStatus[strings.ReplaceAll(value, " ", "_")]++
			}
			if strings.Contains(value, "employed") && !strings.Contains(value, "unemployed") {
				a.EmploymentPlacements++
			}
		}
		if wraparound >= 0 {
			for _, code := range strings.Split(row[wraparound], ",") {
				usage[strings.ToLower(strings.TrimSpace(code))]++
			}
		}
	}
	for _, s := range WraparoundServices {
		a.Wraparound = append(a.Wraparound, ServiceUsage{Type: s.Type, Name: s.Name, Count: usage[s.Code]})
	}
	return a, nil
}

func countStatus(b *StatusBreakdown, status string) {
	if strings.Contains(status, "active") {
		b.Active++
	}
	if strings.Contains(status, "graduated") || strings.Contains(status, "completed") {
		b.Graduated++
	}
	if strings.Contains(status, "withdrawn") || strings.Contains(status, "terminated") {
		b.Withdrawn++
	}
}

// findColumn returns the index of the first key equal to a candidate, else the first key containing
// one, else -1.
func findColumn(table *ingestion.StagedTable, candidates []string) int {
	for _, c := range candidates {
		if i := table.Index(c); i >= 0 {
			return i
		}
	}
	for _, c := range candidates {
		for i, k := range table.Keys {
			if strings.Contains(k, c) {
				return i
			}
		}
	}
	return -1
}

// WriteAggregates stores the aggregates as JSON at path.
func WriteAggregates(path string, a *Aggregates) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode aggregates: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadAggregates loads aggregates written by WriteAggregates.
func ReadAggregates(path string) (*Aggregates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Aggregates
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &a, nil
}
