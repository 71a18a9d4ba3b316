package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/partner-intake/internal/approval"
	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/pipeline"
	"github.com/jonathan/partner-intake/internal/publish"
	"github.com/jonathan/partner-intake/internal/reporting"
	"github.com/jonathan/partner-intake/internal/retry"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	identity = types.RunIdentity{Partner: "acme", Quarter: "q1", Platform: "minimal", Year: "2026"}
)

const (
	validCSV   = "First Name,Last Name,Date of Birth,Zip\nAda,Lovelace,12/10/1985,98101\nGrace,Hopper,12/09/1976,98102-1234\n"
	invalidCSV = "First Name,Last Name,Date of Birth,Zip\nAda,,12/10/1985,98101\nGrace,Hopper,13/45/1976,00000\n"
	junkCSV    = "Item,Price\nwidget,3.50\n"

	extendedCSV = "First Name,Last Name,Date of Birth,Zip,Email\nAda,Lovelace,12/10/1985,98101,ada@example.com\n"
)

func clock() time.Time { return fixedNow }

// recordingApprover counts staff prompts.
type recordingApprover struct {
	inner approval.Approver
	calls int
}

func (r *recordingApprover) RequestApproval(ctx context.Context, req approval.Request) (*approval.Decision, error) {
	r.calls++
	return r.inner.RequestApproval(ctx, req)
}

type harness struct {
	store     *runstate.Store
	publisher *publish.Publisher
	planner   *Planner
	loop      *Loop
	approver  *recordingApprover
	rc        *runctx.RunContext
	passes    []Pass
}

func newHarness(t *testing.T, approver approval.Approver) *harness {
	t.Helper()
	root := t.TempDir()
	runs := filepath.Join(root, "runs")
	sim := filepath.Join(root, "sim")

	h := &harness{
		store:     runstate.NewStore(runs, nil, clock),
		publisher: publish.NewPublisher(sim),
		approver:  &recordingApprover{inner: approver},
	}
	policy := retry.NewPolicy(3)
	links := publish.NewLinkIssuer(
		&config.LinkConfig{Secret: "0123456789abcdef0123", ExpirationHours: 24},
		&config.AccessCodeConfig{BcryptCost: 10}, "", clock)
	gate := approval.NewGate(h.store, h.publisher, links, reporting.NewEmailGenerator(nil, nil), h.approver)
	adapter := pipeline.NewAdapter(pipeline.Options{Store: h.store})

	h.planner = NewPlanner(h.store, policy, "", nil)
	h.loop = NewLoop(LoopOptions{
		Store:          h.store,
		Planner:        h.planner,
		Executor:       NewExecutor(h.store, adapter, gate, policy),
		Policy:         policy,
		RunsRoot:       runs,
		SimulationRoot: sim,
		Targets:        []types.RunIdentity{identity},
		Now:            clock,
		OnPass:         func(_ *runctx.RunContext, p Pass) { h.passes = append(h.passes, p) },
	})
	h.rc = h.loop.RunContext(identity)
	require.NoError(t, os.MkdirAll(h.rc.UploadsDir(), 0o755))
	return h
}

func (h *harness) upload(t *testing.T, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(h.rc.UploadsDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func (h *harness) inspect(t *testing.T) *runstate.Details {
	t.Helper()
	d, err := h.store.Inspect(h.rc.RunID())
	require.NoError(t, err)
	return d
}

func (h *harness) plan(t *testing.T) *Plan {
	t.Helper()
	p, err := h.planner.Plan(h.rc)
	require.NoError(t, err)
	return p
}

func (h *harness) drive(t *testing.T) *DriveResult {
	t.Helper()
	res, err := h.loop.Drive(context.Background(), identity)
	require.NoError(t, err)
	return res
}
