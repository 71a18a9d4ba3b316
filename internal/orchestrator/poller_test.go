package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/partner-intake/internal/approval"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func (h *harness) state() types.OrchestratorState {
	d, err := h.store.Inspect(h.rc.RunID())
	if err != nil {
		return ""
	}
	return d.State
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestPoller_PicksUpUpload(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, approval.Static{Status: approval.StatusApproved, Now: clock})
	h.upload(t, "acme_q1.csv", validCSV, fixedNow)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewPoller(h.loop, 10*time.Millisecond, nil).Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.state() == types.StateCompletedOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(&Loop{}, 0, nil)
	assert.Equal(t, DefaultPollInterval, p.interval)
}

func TestEventWatcher_DrivesOnNewUpload(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, approval.Static{Status: approval.StatusApproved, Now: clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewEventWatcher(h.loop, 20*time.Millisecond, nil).Run(ctx) }()

	// The initial sweep writes the plan once the watches are in place.
	require.Eventually(t, func() bool {
		return fileExists(h.rc.EvidencePath(runctx.PlanFile))
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.StateNew, h.state())

	require.NoError(t, os.WriteFile(filepath.Join(h.rc.UploadsDir(), "acme_q1.csv"), []byte(validCSV), 0o644))

	require.Eventually(t, func() bool {
		return h.state() == types.StateCompletedOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestEventWatcher_WatchesNewPartnerFolder(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, approval.Static{Status: approval.StatusApproved, Now: clock})
	require.NoError(t, os.RemoveAll(h.rc.UploadsDir()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewEventWatcher(h.loop, 20*time.Millisecond, nil).Run(ctx) }()

	require.Eventually(t, func() bool {
		return fileExists(h.rc.EvidencePath(runctx.PlanFile))
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.MkdirAll(h.rc.UploadsDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.rc.UploadsDir(), "acme_q1.csv"), []byte(validCSV), 0o644))

	require.Eventually(t, func() bool {
		return h.state() == types.StateCompletedOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestEventWatcher_Debounce(t *testing.T) {
	w := &EventWatcher{debounce: time.Hour, pending: map[string]time.Time{
		"fresh": time.Now(),
		"stale": time.Now().Add(-2 * time.Hour),
	}}

	assert.Equal(t, []string{"stale"}, w.due())
	assert.Contains(t, w.pending, "fresh")
	assert.NotContains(t, w.pending, "stale")
}
