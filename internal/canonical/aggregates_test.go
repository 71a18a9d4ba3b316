package canonical

import (
	"path/filepath"
	"testing"

	"github.com/jonathan/partner-intake/internal/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aggregatesTable() *ingestion.StagedTable {
	return &ingestion.StagedTable{
		Keys: []string{"first_name", "last_name", "date_of_birth", "current_program_status", "employment_status",
			"wraparound_services_provided_this_quarter"},
		Rows: [][]string{
			{"Ada", "Lovelace", "12/10/1985", "Currently active", "Employed", "a, b"},
			{"ada", "LOVELACE", "12/10/1985", "Graduated", "Employed", "a"},
			{"Grace", "Hopper", "12/09/1976", "Withdrawn", "Unemployed", ""},
			{"Linus", "Torvalds", "12/28/1969", "Completed", "Not in labor force", "g,z"},
		},
	}
}

func TestCollectAggregates(t *testing.T) {
	a, err := CollectAggregates(aggregatesTable())
	require.NoError(t, err)

	assert.Equal(t, 4, a.Enrollments)
	assert.Equal(t, 3, a.Participants, "same name and birth date is one participant")
	assert.Equal(t, 2, a.EmploymentPlacements, "unemployed is not a placement")
	assert.Equal(t, StatusBreakdown{Active: 1, Graduated: 2, Withdrawn: 1}, a.Status)
	assert.Equal(t, map[string]int{"employed": 2, "unemployed": 1, "not_in_labor_force": 1}, a.EmploymentStatus)

	require.Len(t, a.Wraparound, len(WraparoundServices))
	counts := map[string]int{}
	for _, u := range a.Wraparound {
		counts[u.Type] = u.Count
	}
	assert.Equal(t, 2, counts["transportation"])
	assert.Equal(t, 1, counts["childcare"])
	assert.Equal(t, 1, counts["other"])
	assert.Equal(t, 0, counts["navigation"])
	assert.Equal(t, "Transportation", a.Wraparound[0].Name)
	assert.True(t, a.WraparoundUsed())

	res := a.Result()
	assert.True(t, res.OK)
	assert.Equal(t, "Collected aggregates: 3 participants, 4 enrollments, 2 employment placements", res.Summary)
}

func TestCollectAggregates_MissingColumns(t *testing.T) {
	table := &ingestion.StagedTable{
		Keys: []string{"first_name", "status"},
		Rows: [][]string{{"Ada", "active"}, {"Ada", "active"}},
	}

	a, err := CollectAggregates(table)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Participants, "without identity columns every row counts")
	assert.Equal(t, 0, a.EmploymentPlacements)
	assert.Equal(t, StatusBreakdown{}, a.Status)
	assert.Empty(t, a.EmploymentStatus)
	assert.False(t, a.WraparoundUsed())

	_, err = CollectAggregates(&ingestion.StagedTable{Keys: []string{"first_name"}})
	assert.ErrorIs(t, err, ErrEmptyTable)
	_, err = CollectAggregates(nil)
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestWriteAggregates(t *testing.T) {
	a, err := CollectAggregates(aggregatesTable())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "outputs", "wsac_aggregates.json")
	require.NoError(t, WriteAggregates(path, a))

	got, err := ReadAggregates(path)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = ReadAggregates(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
