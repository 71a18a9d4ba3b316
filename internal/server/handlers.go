package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// accessCodeHeader carries the partner's access code on secure-link requests.
const accessCodeHeader = "X-Access-Code"

// RunStatus is the staff-facing view of a run. Secure link fields other than the expiry are left out.
type RunStatus struct {
	RunID               string                  `json:"run_id"`
	State               types.OrchestratorState `json:"state"`
	HITLStatus          string                  `json:"hitl_status,omitempty"`
	StaffApprovalStatus string                  `json:"staff_approval_status,omitempty"`
	ResumeAvailable     bool                    `json:"resume_available"`
	OrchestratorStatus  string                  `json:"orchestrator_status,omitempty"`
	LastAction          string                  `json:"last_orchestrator_action,omitempty"`
	LinkExpiresAt       *time.Time              `json:"secure_link_expires_at,omitempty"`
	Phase               string                  `json:"current_phase,omitempty"`
	ResumeAttempts      int                     `json:"resume_attempt_count"`
	ValidationPassed    bool                    `json:"validation_passed"`
	HaltReason          string                  `json:"halt_reason,omitempty"`
	OpenViolations      int                     `json:"open_violations"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRuns lists the ids of runs that have executed.
func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	ids, err := s.store.List()
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": ids})
}

// handleRunStatus returns the derived state of one run.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if err := validateRunID(runID); err != nil {
		s.errorResponse(w, err)
		return
	}

	d, err := s.store.Inspect(runID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if d.Manifest == nil {
		s.errorResponse(w, &ErrRunNotFound{RunID: runID})
		return
	}

	m := d.Manifest
	status := RunStatus{
		RunID:               runID,
		State:               d.State,
		HITLStatus:          string(m.HITLStatus),
		StaffApprovalStatus: string(m.StaffApprovalStatus),
		ResumeAvailable:     m.ResumeAvailable,
		OrchestratorStatus:  string(m.OrchestratorStatus),
		LastAction:          m.LastOrchestratorAction,
		LinkExpiresAt:       m.SecureLinkExpiresAt,
		UpdatedAt:           m.UpdatedAt,
	}
	if res := d.Resume; res != nil {
		status.Phase = res.CurrentPhase
		status.ResumeAttempts = res.ResumeAttemptCount
		status.ValidationPassed = res.ValidationPassed
		status.HaltReason = res.HaltReason
		status.OpenViolations = len(res.ValidationViolations)
		if res.UpdatedAt.After(status.UpdatedAt) {
			status.UpdatedAt = res.UpdatedAt
		}
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleLink serves the partner-accessible error report behind a secure link. The token must verify,
// and the access code must match the hash stored for the run's current link.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	claims, err := s.links.Verify(r.PathValue("token"))
	if err != nil {
		s.errorResponse(w, &ErrInvalidLink{Cause: err})
		return
	}
	code := r.Header.Get(accessCodeHeader)
	if strings.TrimSpace(code) == "" {
		s.errorResponse(w, &ErrAccessCodeRequired{})
		return
	}
	if err := validateRunID(claims.RunID); err != nil {
		s.errorResponse(w, &ErrInvalidLink{Cause: err})
		return
	}

	d, err := s.store.Inspect(claims.RunID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	m := d.Manifest
	if m == nil || m.SecureLinkCodeHash == "" || m.PartnerReportPath == "" {
		s.errorResponse(w, &ErrLinkRevoked{RunID: claims.RunID})
		return
	}
	if !s.links.VerifyAccessCode(code, m.SecureLinkCodeHash) {
		s.logger.Warn("secure link access denied", zap.String("run_id", claims.RunID))
		s.errorResponse(w, &ErrAccessDenied{})
		return
	}
	if filepath.Base(m.PartnerReportPath) != claims.File {
		s.errorResponse(w, &ErrLinkRevoked{RunID: claims.RunID})
		return
	}

	f, err := os.Open(m.PartnerReportPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.errorResponse(w, &ErrLinkRevoked{RunID: claims.RunID})
			return
		}
		s.errorResponse(w, fmt.Errorf("failed to open partner report: %w", err))
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		s.errorResponse(w, fmt.Errorf("failed to stat partner report: %w", err))
		return
	}

	s.logger.Info("secure link served", zap.String("run_id", claims.RunID), zap.String("file", claims.File))
	w.Header().Set("Content-Type", contentType(claims.File))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", claims.File))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, claims.File, info.ModTime(), f)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// validateRunID rejects ids that could escape the runs root.
func validateRunID(runID string) error {
	if runID == "" || runID == "." || strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return &ErrValidation{Field: "run_id", Message: "invalid run id"}
	}
	return nil
}

// redactPath hides link tokens in logged paths.
func redactPath(path string) string {
	if strings.HasPrefix(path, "/links/") {
		return "/links/[redacted]"
	}
	return path
}
