// Package approval is the human-in-the-loop gate in front of every partner-facing disclosure.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/partner-intake/internal/canonical"
	"github.com/jonathan/partner-intake/internal/reporting"
)

// Status is a staff decision.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ErrApprovalUnavailable is returned by approvers that cannot ask a person, such as non-interactive runs.
var ErrApprovalUnavailable = errors.New("staff approval unavailable")

// RejectedError carries the staff member's mandatory rejection reason.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("email sending rejected by staff: %s", e.Reason)
}

// Request is what staff see before deciding.
type Request struct {
	RunID             string
	Partner           string
	Quarter           string
	Year              string
	ErrorReportPath   string
	InternalReportURL string
	ErrorCount        int
	WarningCount      int
	Categories        []reporting.CategoryCount
	Aggregates        *canonical.Aggregates // nil when the file could not be totalled
	EmailPreview      string
}

// Decision is a recorded staff decision.
type Decision struct {
	ID        string    `json:"decision_id"`
	Status    Status    `json:"approval_status"`
	Comments  string    `json:"staff_comments,omitempty"`
	DecidedAt time.Time `json:"approval_timestamp"`
}

// Approved reports whether staff approved the request.
func (d *Decision) Approved() bool {
	return d != nil && d.Status == StatusApproved
}

// NewDecision builds a decision with a fresh id. A rejection without a reason is refused.
func NewDecision(status Status, comments string, at time.Time) (*Decision, error) {
	switch status {
	case StatusApproved:
	case StatusRejected:
		if comments == "" {
			return nil, fmt.Errorf("rejection reason is required")
		}
	default:
		return nil, fmt.Errorf("unknown approval status %q", status)
	}
	return &Decision{ID: uuid.NewString(), Status: status, Comments: comments, DecidedAt: at.UTC()}, nil
}

// Approver asks staff to approve sending an error report to a partner.
type Approver interface {
	RequestApproval(ctx context.Context, req Request) (*Decision, error)
}

// Unavailable is the approver for non-interactive runs. It always returns ErrApprovalUnavailable.
type Unavailable struct{}

// RequestApproval implements Approver.
func (Unavailable) RequestApproval(ctx context.Context, _ Request) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrApprovalUnavailable
}

// Static returns a fixed decision.
type Static struct {
	Status   Status
	Comments string
	Now      func() time.Time
}

// RequestApproval implements Approver.
func (s Static) RequestApproval(ctx context.Context, _ Request) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return NewDecision(s.Status, s.Comments, now())
}
