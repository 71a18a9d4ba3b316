package approval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/evidence"
	"github.com/jonathan/partner-intake/internal/pipeline"
	"github.com/jonathan/partner-intake/internal/publish"
	"github.com/jonathan/partner-intake/internal/reporting"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invalidCSV = "First Name,Last Name,Date of Birth,Zip Code\nAda,,12/10/1985,98101\nGrace,Hopper,13/45/1976,00000\n"

var identity = types.RunIdentity{Partner: "acme", Quarter: "q1", Platform: "minimal", Year: "2026"}

// countingApprover records how often staff were asked.
type countingApprover struct {
	inner Approver
	calls int
	last  Request
}

func (c *countingApprover) RequestApproval(ctx context.Context, req Request) (*Decision, error) {
	c.calls++
	c.last = req
	return c.inner.RequestApproval(ctx, req)
}

type gateHarness struct {
	store     *runstate.Store
	publisher *publish.Publisher
	links     *publish.LinkIssuer
	rc        *runctx.RunContext
	rec       *evidence.Recorder
	approver  *countingApprover
	gate      *Gate
}

func newGateHarness(t *testing.T, approver Approver) *gateHarness {
	t.Helper()
	root := t.TempDir()
	runs := filepath.Join(root, "runs")
	sim := filepath.Join(root, "sim")

	h := &gateHarness{
		store:     runstate.NewStore(runs, nil, clock),
		publisher: publish.NewPublisher(sim),
		links: publish.NewLinkIssuer(
			&config.LinkConfig{Secret: "0123456789abcdef0123", ExpirationHours: 24},
			&config.AccessCodeConfig{BcryptCost: 10}, "", clock),
		rc:       runctx.New(identity, runs, sim, clock, nil),
		approver: &countingApprover{inner: approver},
	}
	h.rec = evidence.NewRecorder(h.rc)
	h.gate = NewGate(h.store, h.publisher, h.links, reporting.NewEmailGenerator(nil, nil), h.approver)

	require.NoError(t, os.MkdirAll(h.rc.UploadsDir(), 0o755))
	path := filepath.Join(h.rc.UploadsDir(), "acme_q1.csv")
	require.NoError(t, os.WriteFile(path, []byte(invalidCSV), 0o644))

	out, err := pipeline.NewAdapter(pipeline.Options{Store: h.store}).RunInitial(context.Background(), h.rc, h.rec, path)
	require.NoError(t, err)
	require.True(t, out.Halted)
	return h
}

func (h *gateHarness) inspect(t *testing.T) *runstate.Details {
	t.Helper()
	d, err := h.store.Inspect(h.rc.RunID())
	require.NoError(t, err)
	return d
}

func TestGate_Approved(t *testing.T) {
	h := newGateHarness(t, Static{Status: StatusApproved, Now: clock})

	out, err := h.gate.Run(context.Background(), h.rc, h.rec)
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.OK, out.Result.Blockers)
	require.NotNil(t, out.Decision)
	assert.True(t, out.Decision.Approved())
	require.NotNil(t, out.InternalUpload)
	require.NotNil(t, out.PartnerUpload)
	require.NotNil(t, out.Link)
	assert.FileExists(t, out.InternalUpload.Path)
	assert.FileExists(t, out.PartnerUpload.Path)

	assert.Positive(t, h.approver.last.ErrorCount)
	require.NotNil(t, h.approver.last.Aggregates)
	assert.Equal(t, 2, h.approver.last.Aggregates.Enrollments)
	assert.Equal(t, 2, h.approver.last.Aggregates.Participants)
	assert.NotContains(t, h.approver.last.EmailPreview, out.Link.AccessCode)

	d := h.inspect(t)
	assert.Equal(t, types.StateAwaitingPartnerUpload, d.State)
	assert.Equal(t, types.NullableString(types.ApprovalApproved), d.Manifest.StaffApprovalStatus)
	assert.True(t, d.Manifest.ResumeAvailable)
	assert.Equal(t, out.Link.URL, d.Manifest.SecureLinkURL)
	assert.Equal(t, out.PartnerUpload.Path, d.Manifest.PartnerReportPath)
	assert.True(t, h.links.VerifyAccessCode(out.Link.AccessCode, d.Manifest.SecureLinkCodeHash))
	assert.Equal(t, types.PhaseAwaitingPartnerCorrection, d.Resume.CurrentPhase)

	manifest, err := os.ReadFile(h.rc.EvidencePath(runctx.ManifestFile))
	require.NoError(t, err)
	assert.NotContains(t, string(manifest), out.Link.AccessCode)

	code, err := os.ReadFile(h.rc.EvidencePath(runctx.SecureLinkCodeFile))
	require.NoError(t, err)
	assert.Contains(t, string(code), out.Link.AccessCode)

	preview, err := os.ReadFile(h.rc.OutputPath(runctx.EmailPreviewFile))
	require.NoError(t, err)
	assert.NotContains(t, string(preview), out.Link.AccessCode)

	email, err := os.ReadFile(h.rc.OutputPath(runctx.PartnerEmailFile))
	require.NoError(t, err)
	assert.Contains(t, string(email), out.Link.AccessCode)
	info, err := os.Stat(h.rc.OutputPath(runctx.PartnerEmailFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	events, err := h.rec.Events()
	require.NoError(t, err)
	var tools []string
	for _, e := range events {
		if e.EventType == evidence.EventStepEnd {
			tools = append(tools, e.Data["tool"].(string))
		}
		for _, v := range e.Data {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, out.Link.AccessCode)
			}
		}
	}
	assert.Contains(t, strings.Join(tools, ","), strings.Join([]string{
		ToolUploadInternal, ToolEmailPreview, ToolRequestApproval, ToolUploadPartner, ToolIssueLink, ToolPartnerEmail,
	}, ","))
}

func TestGate_ApprovalIsRequestedOncePerRun(t *testing.T) {
	h := newGateHarness(t, Static{Status: StatusApproved, Now: clock})

	_, err := h.gate.Run(context.Background(), h.rc, h.rec)
	require.NoError(t, err)
	out, err := h.gate.Run(context.Background(), h.rc, h.rec)
	require.NoError(t, err)
	assert.True(t, out.Result.OK)
	assert.Equal(t, 1, h.approver.calls)
}

func TestGate_Rejected(t *testing.T) {
	h := newGateHarness(t, Static{Status: StatusRejected, Comments: "incomplete data", Now: clock})

	out, err := h.gate.Run(context.Background(), h.rc, h.rec)
	require.NoError(t, err)
	require.NotNil(t, out.Rejection)
	assert.Equal(t, "incomplete data", out.Rejection.Reason)
	assert.True(t, out.Result.Halted())
	assert.Nil(t, out.PartnerUpload)
	assert.Nil(t, out.Link)

	d := h.inspect(t)
	assert.Equal(t, types.StateHaltedApprovalRejected, d.State)
	assert.False(t, d.Manifest.ResumeAvailable)
	assert.Empty(t, d.Manifest.SecureLinkURL)
	assert.Equal(t, types.PhaseApprovalRejected, d.Resume.CurrentPhase)
	assert.Equal(t, "Rejected by staff: incomplete data", d.Resume.HaltReason)

	assert.NoDirExists(t, h.publisher.Dir(publish.DestinationPartner, h.rc.RunID()))
	assert.NoFileExists(t, h.rc.EvidencePath(runctx.SecureLinkCodeFile))
	assert.NoFileExists(t, h.rc.OutputPath(runctx.PartnerEmailFile))

	again, err := h.gate.Run(context.Background(), h.rc, h.rec)
	require.NoError(t, err)
	assert.True(t, again.Result.Halted())
	assert.Equal(t, 1, h.approver.calls)
}

func TestGate_Unavailable(t *testing.T) {
	h := newGateHarness(t, Unavailable{})

	out, err := h.gate.Run(context.Background(), h.rc, h.rec)
	require.NoError(t, err)
	assert.True(t, out.Unavailable)
	assert.True(t, out.Result.Halted())
	assert.NotNil(t, out.InternalUpload)

	d := h.inspect(t)
	assert.Equal(t, types.StateHaltedValidationErrors, d.State)
	assert.Empty(t, d.Manifest.StaffApprovalStatus)
	assert.NoDirExists(t, h.publisher.Dir(publish.DestinationPartner, h.rc.RunID()))
}

func TestGate_PublishToPartnerRequiresApproval(t *testing.T) {
	h := newGateHarness(t, Unavailable{})

	out, err := h.gate.PublishToPartner(context.Background(), h.rc, h.rec)
	require.NoError(t, err)
	assert.True(t, out.Result.Halted())
	assert.Equal(t, "Partner publication requires staff approval", out.Result.Summary)
	assert.NoDirExists(t, h.publisher.Dir(publish.DestinationPartner, h.rc.RunID()))
}

func TestGate_PublishToPartnerIssuesFreshLink(t *testing.T) {
	h := newGateHarness(t, Static{Status: StatusApproved, Now: clock})
	first, err := h.gate.Run(context.Background(), h.rc, h.rec)
	require.NoError(t, err)

	second, err := h.gate.PublishToPartner(context.Background(), h.rc, h.rec)
	require.NoError(t, err)
	assert.True(t, second.Result.OK)
	assert.NotEqual(t, first.Link.AccessCode, second.Link.AccessCode)

	d := h.inspect(t)
	assert.True(t, h.links.VerifyAccessCode(second.Link.AccessCode, d.Manifest.SecureLinkCodeHash))
	assert.True(t, d.Manifest.SecureLinkExpiresAt.Equal(fixedNow.Add(24*time.Hour)))
}
