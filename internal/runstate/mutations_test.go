package runstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/partner-intake/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identity = types.RunIdentity{Partner: "acme", Quarter: "q1", Platform: "minimal", Year: "2026"}

var failing = types.Violations{Violations: []types.Violation{
	{RowIndex: 1, Field: "zip_code", Severity: types.SeverityError, Message: "Invalid zip code: all zeros"},
	{RowIndex: 2, Field: "address_2", Severity: types.SeverityWarning, Message: "Optional field address_2 is empty"},
}}

func writeOriginal(t *testing.T, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acme_q1.csv")
	require.NoError(t, os.WriteFile(path, []byte("First Name,Last Name,Date of Birth\n"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestNewManifest(t *testing.T) {
	m := NewManifest(identity)
	assert.Equal(t, "acme-q1-minimal", m.RunID)
	assert.Equal(t, AgentName, m.Agent)
	assert.Equal(t, "minimal", m.Platform)
	assert.False(t, m.Halted())
}

func TestSaveAndUpdateManifest(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateManifest(identity.RunID(), func(*types.EvidenceManifest) {})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveManifest(NewManifest(identity)))
	m, err := s.UpdateManifest(identity.RunID(), func(m *types.EvidenceManifest) {
		m.HITLStatus = types.HITLHalted
		m.LastOrchestratorAction = "ingest_and_validate_initial"
	})
	require.NoError(t, err)
	assert.True(t, m.UpdatedAt.Equal(fixedNow))

	loaded, err := s.LoadManifest(identity.RunID())
	require.NoError(t, err)
	assert.True(t, loaded.Halted())
	assert.Equal(t, "ingest_and_validate_initial", loaded.LastOrchestratorAction)
}

func TestBeginCorrectionCycle(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	original := writeOriginal(t, mtime)

	r, err := s.BeginCorrectionCycle(identity, original, "/reports/acme.xlsx", failing)
	require.NoError(t, err)
	assert.Equal(t, 0, r.ResumeAttemptCount)
	assert.True(t, r.LastCorrectedFileMtime.Equal(mtime))
	assert.Equal(t, "1 errors found", r.HaltReason)
	assert.Equal(t, types.PhaseAwaitingStaffReview, r.CurrentPhase)
	assert.Equal(t, "acme", r.PartnerName)
	assert.Len(t, r.ValidationViolations, 2)

	// A second call refreshes the report but keeps the cycle.
	_, err = s.RecordResumeAttempt(identity.RunID(), "/uploads/acme/fixed.csv", mtime.Add(time.Hour))
	require.NoError(t, err)
	again, err := s.BeginCorrectionCycle(identity, original, "/reports/acme_v2.xlsx", failing)
	require.NoError(t, err)
	assert.Equal(t, 1, again.ResumeAttemptCount)
	assert.Equal(t, "/reports/acme_v2.xlsx", again.PartnerErrorReportPath)
	assert.Equal(t, "/uploads/acme/fixed.csv", again.LastCorrectedFilePath)
}

func TestBeginCorrectionCycle_MissingOriginal(t *testing.T) {
	s := newTestStore(t)
	r, err := s.BeginCorrectionCycle(identity, filepath.Join(t.TempDir(), "gone.csv"), "", failing)
	require.NoError(t, err)
	assert.True(t, r.LastCorrectedFileMtime.IsZero())
}

func TestRecordResumeAttempt_IncrementsByOne(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	_, err := s.BeginCorrectionCycle(identity, writeOriginal(t, mtime), "", failing)
	require.NoError(t, err)

	prev := 0
	for i := 1; i <= 4; i++ {
		r, err := s.RecordResumeAttempt(identity.RunID(), "/uploads/acme/fix.csv", mtime.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, prev+1, r.ResumeAttemptCount)
		prev = r.ResumeAttemptCount

		// Outcome updates never touch the counter.
		r, err = s.RecordResumeOutcome(identity.RunID(), false, failing, "")
		require.NoError(t, err)
		assert.Equal(t, prev, r.ResumeAttemptCount)
	}

	_, err = s.UpdateResumeState(identity.RunID(), func(r *types.ResumeState) { r.ResumeAttemptCount = 0 })
	require.NoError(t, err)
	r, err := s.LoadResumeState(identity.RunID())
	require.NoError(t, err)
	assert.Equal(t, 4, r.ResumeAttemptCount)
}

func TestRecordResumeAttempt_MtimeNeverMovesBack(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	_, err := s.BeginCorrectionCycle(identity, writeOriginal(t, mtime), "", failing)
	require.NoError(t, err)

	r, err := s.RecordResumeAttempt(identity.RunID(), "/uploads/acme/old.csv", mtime.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, r.LastCorrectedFileMtime.Equal(mtime))
}

func TestRecordResumeAttempt_NoCycle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RecordResumeAttempt(identity.RunID(), "x.csv", fixedNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordResumeOutcome(t *testing.T) {
	s := newTestStore(t)
	_, err := s.BeginCorrectionCycle(identity, writeOriginal(t, fixedNow), "/reports/v1.xlsx", failing)
	require.NoError(t, err)

	r, err := s.RecordResumeOutcome(identity.RunID(), false, failing, "/reports/v2.xlsx")
	require.NoError(t, err)
	assert.False(t, r.ValidationPassed)
	assert.Equal(t, "/reports/v2.xlsx", r.PartnerErrorReportPath)
	assert.Equal(t, types.PhaseAwaitingPartnerCorrection, r.CurrentPhase)

	r, err = s.RecordResumeOutcome(identity.RunID(), true, types.Violations{}, "")
	require.NoError(t, err)
	assert.True(t, r.ValidationPassed)
	assert.Empty(t, r.HaltReason)
	assert.Equal(t, types.PhaseCompleted, r.CurrentPhase)
}

func TestMarkPersistentFailure(t *testing.T) {
	s := newTestStore(t)
	m := NewManifest(identity)
	m.HITLStatus = types.HITLHalted
	m.ResumeAvailable = true
	require.NoError(t, s.SaveManifest(m))
	_, err := s.BeginCorrectionCycle(identity, writeOriginal(t, fixedNow), "", failing)
	require.NoError(t, err)

	require.NoError(t, s.MarkPersistentFailure(identity.RunID(), "max resume attempts (3) exceeded"))

	d, err := s.Inspect(identity.RunID())
	require.NoError(t, err)
	assert.True(t, d.PersistentFailure())
	assert.False(t, d.Manifest.ResumeAvailable)
	assert.Equal(t, types.PhasePersistentFailure, d.Resume.CurrentPhase)
	assert.Equal(t, "max resume attempts (3) exceeded", d.Resume.HaltReason)
}

func TestMarkPersistentFailure_RequiresManifest(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.MarkPersistentFailure(identity.RunID(), "x"), ErrNotFound)
}
