package runstate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halted() *types.EvidenceManifest {
	return &types.EvidenceManifest{RunID: "acme-q1-minimal", HITLStatus: types.HITLHalted}
}

func TestDerive(t *testing.T) {
	rejected := halted()
	rejected.StaffApprovalStatus = types.ApprovalRejected
	rejected.ResumeAvailable = true

	awaiting := halted()
	awaiting.ResumeAvailable = true

	tests := []struct {
		name     string
		manifest *types.EvidenceManifest
		resume   *types.ResumeState
		want     types.OrchestratorState
	}{
		{name: "no documents", want: types.StateNew},
		{name: "orphan resume state", resume: &types.ResumeState{ResumeAttemptCount: 2}, want: types.StateNew},
		{name: "completed", manifest: &types.EvidenceManifest{RunID: "x"}, want: types.StateCompletedOK},
		{name: "rejection wins over resume available", manifest: rejected, want: types.StateHaltedApprovalRejected},
		{name: "awaiting upload", manifest: awaiting, want: types.StateAwaitingPartnerUpload},
		{name: "halted", manifest: halted(), want: types.StateHaltedValidationErrors},
		{
			name:     "cycle started, no attempts",
			manifest: awaiting,
			resume:   &types.ResumeState{ResumeAttemptCount: 0},
			want:     types.StateAwaitingPartnerUpload,
		},
		{
			name:     "failed again",
			manifest: awaiting,
			resume:   &types.ResumeState{ResumeAttemptCount: 1},
			want:     types.StateResumedValidationFailedAgain,
		},
		{
			name:     "resume passed",
			manifest: &types.EvidenceManifest{RunID: "x"},
			resume:   &types.ResumeState{ResumeAttemptCount: 2, ValidationPassed: true},
			want:     types.StateCompletedOK,
		},
		{
			name:     "resume override applies after rejection",
			manifest: rejected,
			resume:   &types.ResumeState{ResumeAttemptCount: 1},
			want:     types.StateResumedValidationFailedAgain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.manifest, tt.resume))
		})
	}
}

func TestInspect_NewRun(t *testing.T) {
	s := newTestStore(t)

	d, err := s.Inspect("acme-q1-minimal")
	require.NoError(t, err)
	assert.Equal(t, types.StateNew, d.State)
	assert.Nil(t, d.Manifest)
	assert.Nil(t, d.Resume)
	assert.Equal(t, 0, d.ResumeAttemptCount())
	assert.False(t, d.PersistentFailure())
}

func TestInspect_IsDeterministic(t *testing.T) {
	s := newTestStore(t)
	m := halted()
	m.ResumeAvailable = true
	require.NoError(t, s.SaveManifest(m))
	require.NoError(t, s.Put(m.RunID, KeyResumeState, &types.ResumeState{
		RunID:              m.RunID,
		OriginalFilePath:   "/uploads/acme/q1.csv",
		ResumeAttemptCount: 1,
		CurrentPhase:       types.PhaseAwaitingPartnerCorrection,
		ValidationViolations: []types.Violation{
			{RowIndex: 2, Field: "zip", Severity: types.SeverityError, Message: "Invalid zip code: all zeros"},
		},
	}))

	first, err := s.Inspect(m.RunID)
	require.NoError(t, err)
	second, err := s.Inspect(m.RunID)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Inspect() not deterministic (-first +second):\n%s", diff)
	}
	assert.Equal(t, types.StateResumedValidationFailedAgain, first.State)
	assert.Equal(t, 1, first.ResumeAttemptCount())
}

func TestInspect_CorruptManifest(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, WriteFileAtomic(s.path("run-1", KeyManifest), []byte("[")))

	_, err := s.Inspect("run-1")
	assert.Error(t, err)
}
