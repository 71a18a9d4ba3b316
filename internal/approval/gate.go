package approval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/partner-intake/internal/canonical"
	"github.com/jonathan/partner-intake/internal/evidence"
	"github.com/jonathan/partner-intake/internal/publish"
	"github.com/jonathan/partner-intake/internal/reporting"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// Tool names as they appear in tool_calls.jsonl.
const (
	ToolUploadInternal  = "upload_sharepoint_internal"
	ToolEmailPreview    = "generate_email_preview"
	ToolRequestApproval = "request_staff_approval"
	ToolUploadPartner   = "upload_sharepoint_partner"
	ToolIssueLink       = "issue_secure_link"
	ToolPartnerEmail    = "generate_partner_email"
)

// Outcome is the result of one pass through the gate.
type Outcome struct {
	Result         *types.ToolResult
	Decision       *Decision
	Rejection      *RejectedError
	Unavailable    bool
	InternalUpload *publish.Upload
	PartnerUpload  *publish.Upload
	Link           *publish.SecureLink
}

// Gate sequences internal publication, the staff preview, the staff decision and, only after approval,
// partner publication with a secure link and the final email.
type Gate struct {
	store     *runstate.Store
	publisher *publish.Publisher
	links     *publish.LinkIssuer
	emails    *reporting.EmailGenerator
	approver  Approver
}

// NewGate creates a Gate.
func NewGate(store *runstate.Store, publisher *publish.Publisher, links *publish.LinkIssuer,
	emails *reporting.EmailGenerator, approver Approver) *Gate {
	if approver == nil {
		approver = Unavailable{}
	}
	return &Gate{store: store, publisher: publisher, links: links, emails: emails, approver: approver}
}

type correction struct {
	reportPath string
	violations types.Violations
}

// latestReport returns the report and violations of the current correction cycle.
func (g *Gate) latestReport(rc *runctx.RunContext) correction {
	c := correction{reportPath: rc.OutputPath(runctx.ErrorReportFile)}
	resume, err := g.store.LoadResumeState(rc.RunID())
	if err != nil {
		if !errors.Is(err, runstate.ErrNotFound) {
			rc.Logger.Warn("failed to read resume state", zap.Error(err))
		}
		return c
	}
	if resume.PartnerErrorReportPath != "" {
		c.reportPath = resume.PartnerErrorReportPath
	}
	c.violations = types.Violations{Violations: resume.ValidationViolations}
	return c
}

func loadAggregates(rc *runctx.RunContext) *canonical.Aggregates {
	agg, err := canonical.ReadAggregates(rc.OutputPath(runctx.AggregatesFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			rc.Logger.Warn("failed to read aggregates", zap.Error(err))
		}
		return nil
	}
	return agg
}

func (g *Gate) emailInput(rc *runctx.RunContext, c correction) reporting.EmailInput {
	return reporting.EmailInput{
		Partner:        rc.Identity.Partner,
		Quarter:        rc.Identity.Quarter,
		Year:           rc.Identity.Year,
		Violations:     c.violations,
		UploadLocation: g.publisher.UploadsDir(rc.Identity.Partner),
	}
}

// Run takes a halted run through the gate. A run already approved goes straight to partner
// publication; staff are asked at most once per run.
func (g *Gate) Run(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder) (*Outcome, error) {
	manifest, err := g.store.LoadManifest(rc.RunID())
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	switch manifest.StaffApprovalStatus {
	case types.ApprovalRejected:
		return &Outcome{Result: types.Blocked("Staff approval: rejected", "error report was rejected by staff")}, nil
	case types.ApprovalApproved:
		return g.publishPartner(ctx, rc, rec, g.latestReport(rc))
	}

	c := g.latestReport(rc)
	if _, err := os.Stat(c.reportPath); err != nil {
		return &Outcome{Result: types.Blocked("Error report not found", fmt.Sprintf("error report not found: %s", c.reportPath))}, nil
	}
	out := &Outcome{}

	res := rec.Track(ToolUploadInternal, map[string]any{"destination": string(publish.DestinationInternal)}, func() *types.ToolResult {
		upload, err := g.publisher.Publish(c.reportPath, publish.DestinationInternal, rc.Identity)
		if err != nil {
			return types.Blocked("Internal upload failed", err.Error())
		}
		out.InternalUpload = upload
		return upload.Result()
	})
	if res.Halted() {
		out.Result = res
		return out, nil
	}

	var preview *reporting.Email
	res = rec.Track(ToolEmailPreview, nil, func() *types.ToolResult {
		email, err := g.emails.Preview(ctx, g.emailInput(rc, c))
		if err != nil {
			return types.Blocked("Email preview failed", err.Error())
		}
		preview = email
		return email.Result()
	})
	if res.Halted() {
		out.Result = res
		return out, nil
	}
	writeEmail(rc, runctx.EmailPreviewFile, preview, 0o644)

	req := Request{
		RunID:             rc.RunID(),
		Partner:           rc.Identity.Partner,
		Quarter:           rc.Identity.Quarter,
		Year:              rc.Identity.Year,
		ErrorReportPath:   c.reportPath,
		InternalReportURL: out.InternalUpload.URL,
		ErrorCount:        c.violations.ErrorCount(),
		WarningCount:      c.violations.WarningCount(),
		Categories:        reporting.CountErrorsByCategory(c.violations),
		Aggregates:        loadAggregates(rc),
		EmailPreview:      preview.Text,
	}

	var decisionErr error
	res = rec.Track(ToolRequestApproval, nil, func() *types.ToolResult {
		decision, err := g.approver.RequestApproval(ctx, req)
		if err != nil {
			decisionErr = err
			if errors.Is(err, ErrApprovalUnavailable) {
				return types.Blocked("Staff approval unavailable",
					"staff approval unavailable; run interactively to review the error report")
			}
			return types.Blocked("Staff approval failed", err.Error())
		}
		out.Decision = decision
		return decisionResult(decision)
	})
	if decisionErr != nil {
		out.Unavailable = errors.Is(decisionErr, ErrApprovalUnavailable)
		out.Result = res
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		return out, nil
	}

	if !out.Decision.Approved() {
		out.Rejection = &RejectedError{Reason: out.Decision.Comments}
		if err := g.recordRejection(rc, out.Rejection); err != nil {
			return nil, err
		}
		out.Result = res
		return out, nil
	}

	if _, err := g.store.UpdateManifest(rc.RunID(), func(m *types.EvidenceManifest) {
		m.StaffApprovalStatus = types.ApprovalApproved
	}); err != nil {
		return nil, fmt.Errorf("record approval: %w", err)
	}

	partner, err := g.publishPartner(ctx, rc, rec, c)
	if err != nil {
		return nil, err
	}
	partner.Decision = out.Decision
	partner.InternalUpload = out.InternalUpload
	return partner, nil
}

// PublishToPartner publishes the latest error report of an approved run to the partner folder with a
// fresh secure link. Runs without a standing approval are refused.
func (g *Gate) PublishToPartner(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder) (*Outcome, error) {
	manifest, err := g.store.LoadManifest(rc.RunID())
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if manifest.StaffApprovalStatus != types.ApprovalApproved {
		return &Outcome{Result: types.Blocked("Partner publication requires staff approval",
			"error report has not been approved by staff")}, nil
	}
	return g.publishPartner(ctx, rc, rec, g.latestReport(rc))
}

func (g *Gate) publishPartner(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, c correction) (*Outcome, error) {
	out := &Outcome{}

	res := rec.Track(ToolUploadPartner, map[string]any{"destination": string(publish.DestinationPartner)}, func() *types.ToolResult {
		upload, err := g.publisher.Publish(c.reportPath, publish.DestinationPartner, rc.Identity)
		if err != nil {
			return types.Blocked("Partner upload failed", err.Error())
		}
		out.PartnerUpload = upload
		return upload.Result()
	})
	if res.Halted() {
		out.Result = res
		return out, nil
	}

	res = rec.Track(ToolIssueLink, nil, func() *types.ToolResult {
		link, err := g.links.Issue(rc.RunID(), out.PartnerUpload)
		if err != nil {
			return types.Blocked("Secure link issuance failed", err.Error())
		}
		out.Link = link
		return types.Succeeded("Issued secure link", map[string]any{
			"expires_at": link.ExpiresAt.UTC().Format(time.RFC3339),
		})
	})
	if res.Halted() {
		out.Result = res
		return out, nil
	}
	_ = rec.WriteSecureLinkCode(out.Link.URL, out.Link.AccessCode, out.Link.ExpiresAt)

	res = rec.Track(ToolPartnerEmail, nil, func() *types.ToolResult {
		in := g.emailInput(rc, c)
		in.SecureLinkURL = out.Link.URL
		in.AccessCode = out.Link.AccessCode
		email, err := g.emails.Final(ctx, in)
		if err != nil {
			return types.Blocked("Partner email failed", err.Error())
		}
		writeEmail(rc, runctx.PartnerEmailFile, email, 0o600)
		return email.Result()
	})
	if res.Halted() {
		out.Result = res
		return out, nil
	}

	expires := out.Link.ExpiresAt.UTC()
	if _, err := g.store.UpdateManifest(rc.RunID(), func(m *types.EvidenceManifest) {
		m.HITLStatus = types.HITLHalted
		m.ResumeAvailable = true
		m.SecureLinkURL = out.Link.URL
		m.SecureLinkCodeHash = out.Link.CodeHash
		m.SecureLinkExpiresAt = &expires
		m.PartnerReportPath = out.PartnerUpload.Path
	}); err != nil {
		return nil, fmt.Errorf("record partner publication: %w", err)
	}
	if _, err := g.store.UpdateResumeState(rc.RunID(), func(r *types.ResumeState) {
		r.CurrentPhase = types.PhaseAwaitingPartnerCorrection
	}); err != nil && !errors.Is(err, runstate.ErrNotFound) {
		rc.Logger.Warn("failed to update resume state", zap.Error(err))
	}

	out.Result = types.Succeeded("Error report published to partner with secure link", map[string]any{
		"partner_report": filepath.Base(out.PartnerUpload.Path),
		"expires_at":     expires.Format(time.RFC3339),
	})
	return out, nil
}

func (g *Gate) recordRejection(rc *runctx.RunContext, rejection *RejectedError) error {
	if _, err := g.store.UpdateManifest(rc.RunID(), func(m *types.EvidenceManifest) {
		m.HITLStatus = types.HITLHalted
		m.StaffApprovalStatus = types.ApprovalRejected
		m.ResumeAvailable = false
	}); err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	if _, err := g.store.UpdateResumeState(rc.RunID(), func(r *types.ResumeState) {
		r.CurrentPhase = types.PhaseApprovalRejected
		r.HaltReason = "Rejected by staff: " + rejection.Reason
	}); err != nil && !errors.Is(err, runstate.ErrNotFound) {
		rc.Logger.Warn("failed to update resume state", zap.Error(err))
	}
	return nil
}

func decisionResult(d *Decision) *types.ToolResult {
	data := map[string]any{
		"decision_id":        d.ID,
		"approval_status":    string(d.Status),
		"approval_timestamp": d.DecidedAt.Format(time.RFC3339),
	}
	if d.Approved() {
		return types.Succeeded("Staff approval: approved", data)
	}
	res := types.Blocked("Staff approval: rejected", (&RejectedError{Reason: d.Comments}).Error())
	res.Data = data
	return res
}

func writeEmail(rc *runctx.RunContext, name string, email *reporting.Email, perm os.FileMode) {
	path := rc.OutputPath(name)
	if err := runstate.WriteFileAtomic(path, []byte(email.Text)); err != nil {
		rc.Logger.Warn("failed to write email", zap.String("file", name), zap.Error(err))
		return
	}
	if err := os.Chmod(path, perm); err != nil {
		rc.Logger.Warn("failed to restrict email permissions", zap.String("file", name), zap.Error(err))
	}
}
