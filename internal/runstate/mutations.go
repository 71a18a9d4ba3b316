package runstate

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// AgentName is recorded in every manifest.
const AgentName = "partner_intake_orchestrator"

// NewManifest returns a manifest for a run that has not halted.
func NewManifest(id types.RunIdentity) *types.EvidenceManifest {
	return &types.EvidenceManifest{
		RunID:              id.RunID(),
		Agent:              AgentName,
		Platform:           id.Platform,
		DataClassification: types.DataClassificationInternal,
		PIIHandling:        types.PIIHandlingRedacted,
	}
}

// LoadManifest returns the run's manifest or ErrNotFound.
func (s *Store) LoadManifest(runID string) (*types.EvidenceManifest, error) {
	var m types.EvidenceManifest
	if err := s.Get(runID, KeyManifest, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveManifest stamps and writes a manifest.
func (s *Store) SaveManifest(m *types.EvidenceManifest) error {
	if m == nil || m.RunID == "" {
		return fmt.Errorf("manifest has no run id")
	}
	m.UpdatedAt = s.now().UTC()
	return s.Put(m.RunID, KeyManifest, m)
}

// UpdateManifest applies fn to the stored manifest and writes it back.
func (s *Store) UpdateManifest(runID string, fn func(*types.EvidenceManifest)) (*types.EvidenceManifest, error) {
	m, err := s.LoadManifest(runID)
	if err != nil {
		return nil, err
	}
	fn(m)
	m.RunID = runID
	if err := s.SaveManifest(m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadResumeState returns the run's resume state or ErrNotFound.
func (s *Store) LoadResumeState(runID string) (*types.ResumeState, error) {
	var r types.ResumeState
	if err := s.Get(runID, KeyResumeState, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) saveResumeState(r *types.ResumeState) error {
	r.UpdatedAt = s.now().UTC()
	return s.Put(r.RunID, KeyResumeState, r)
}

// UpdateResumeState applies fn to the stored resume state and writes it back. The attempt counter
// cannot be changed through fn; use RecordResumeAttempt.
func (s *Store) UpdateResumeState(runID string, fn func(*types.ResumeState)) (*types.ResumeState, error) {
	r, err := s.LoadResumeState(runID)
	if err != nil {
		return nil, err
	}
	attempts := r.ResumeAttemptCount
	fn(r)
	r.RunID = runID
	r.ResumeAttemptCount = attempts
	if err := s.saveResumeState(r); err != nil {
		return nil, err
	}
	return r, nil
}

// BeginCorrectionCycle creates the resume state after the first failed validation. The last
// corrected mtime is seeded with the original file's mtime, so only later uploads count as
// corrections. If a cycle already exists it is refreshed, never replaced.
func (s *Store) BeginCorrectionCycle(id types.RunIdentity, originalPath, reportPath string, violations types.Violations) (*types.ResumeState, error) {
	runID := id.RunID()
	haltReason := fmt.Sprintf("%d errors found", violations.ErrorCount())

	existing, err := s.LoadResumeState(runID)
	switch {
	case err == nil:
		return s.UpdateResumeState(runID, func(r *types.ResumeState) {
			r.PartnerErrorReportPath = reportPath
			r.ValidationViolations = violations.Violations
			r.ValidationPassed = false
			r.HaltReason = haltReason
			if existing.ResumeAttemptCount == 0 {
				r.CurrentPhase = types.PhaseAwaitingStaffReview
			}
		})
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	var seed time.Time
	if info, statErr := os.Stat(originalPath); statErr == nil {
		seed = info.ModTime().UTC()
	} else {
		s.logger.Warn("original file not found when starting correction cycle",
			zap.String("run_id", runID), zap.Error(statErr))
	}

	r := &types.ResumeState{
		RunID:                  runID,
		OriginalFilePath:       originalPath,
		PartnerErrorReportPath: reportPath,
		LastCorrectedFileMtime: seed,
		HaltReason:             haltReason,
		CurrentPhase:           types.PhaseAwaitingStaffReview,
		PartnerName:            id.Partner,
		Quarter:                id.Quarter,
		Year:                   id.Year,
		ValidationViolations:   violations.Violations,
	}
	if err := s.saveResumeState(r); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordResumeAttempt increments the attempt counter by one and records the corrected file.
// It is persisted before the corrected file is processed, so a crash mid-resume still counts.
func (s *Store) RecordResumeAttempt(runID, correctedPath string, mtime time.Time) (*types.ResumeState, error) {
	r, err := s.LoadResumeState(runID)
	if err != nil {
		return nil, err
	}
	r.ResumeAttemptCount++
	r.LastCorrectedFilePath = correctedPath
	if mtime.After(r.LastCorrectedFileMtime) {
		r.LastCorrectedFileMtime = mtime.UTC()
	}
	if err := s.saveResumeState(r); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordResumeOutcome stores the validation result of the latest resume.
func (s *Store) RecordResumeOutcome(runID string, passed bool, violations types.Violations, reportPath string) (*types.ResumeState, error) {
	return s.UpdateResumeState(runID, func(r *types.ResumeState) {
		r.ValidationPassed = passed
		r.ValidationViolations = violations.Violations
		if passed {
			r.HaltReason = ""
			r.CurrentPhase = types.PhaseCompleted
			return
		}
		r.HaltReason = fmt.Sprintf("%d errors found", violations.ErrorCount())
		r.CurrentPhase = types.PhaseAwaitingPartnerCorrection
		if reportPath != "" {
			r.PartnerErrorReportPath = reportPath
		}
	})
}

// MarkPersistentFailure records the terminal retry outcome on both documents.
func (s *Store) MarkPersistentFailure(runID, reason string) error {
	if _, err := s.UpdateManifest(runID, func(m *types.EvidenceManifest) {
		m.OrchestratorStatus = types.OrchestratorPersistentFailure
		m.ResumeAvailable = false
	}); err != nil {
		return err
	}
	_, err := s.UpdateResumeState(runID, func(r *types.ResumeState) {
		r.CurrentPhase = types.PhasePersistentFailure
		r.HaltReason = reason
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
