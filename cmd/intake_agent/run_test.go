package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand_ValidUploadCompletes(t *testing.T) {
	w := newWorkspace(t)
	w.upload(t, "acme", "acme_q1.csv", validCSV)

	out, err := execute(t, "", append(w.roots(), "run", "--partner", "acme", "--quarter", "q1", "--no-prompt")...)
	require.NoError(t, err, out)

	assert.Contains(t, out, "acme-q1-minimal: COMPLETED_OK")
	assert.FileExists(t, filepath.Join(w.runs, "acme-q1-minimal", "manifest.json"))
	assert.FileExists(t, filepath.Join(w.runs, "acme-q1-minimal", "summary.md"))

	// A completed run has nothing left to plan.
	out, err = execute(t, "", append(w.roots(), "run", "-p", "acme", "-q", "q1", "--no-prompt")...)
	require.NoError(t, err)
	assert.Contains(t, out, "acme-q1-minimal: COMPLETED_OK")
}

func TestRunCommand_NoPromptWaitsForApproval(t *testing.T) {
	w := newWorkspace(t)
	w.upload(t, "acme", "acme_q1.csv", invalidCSV)

	out, err := execute(t, "", append(w.roots(), "run", "--partner", "acme", "--quarter", "q1", "--no-prompt")...)
	require.NoError(t, err, out)

	assert.Contains(t, out, "acme-q1-minimal: HALTED_VALIDATION_ERRORS")
	assert.Contains(t, out, "staff approval")
	assert.NoDirExists(t, filepath.Join(w.sim, "partner_accessible", "acme-q1-minimal"))
}

func TestRunCommand_ConsoleApproval(t *testing.T) {
	w := newWorkspace(t)
	w.upload(t, "acme", "acme_q1.csv", invalidCSV)

	out, err := execute(t, "y\nlooks right\n", append(w.roots(), "run", "--partner", "acme", "--quarter", "q1")...)
	require.NoError(t, err, out)

	assert.Contains(t, out, "STAFF APPROVAL REQUIRED")
	assert.Contains(t, out, "Approval Status: APPROVED")
	assert.Contains(t, out, "acme-q1-minimal: AWAITING_PARTNER_UPLOAD")
	assert.Contains(t, out, "corrected upload")

	code, err := os.ReadFile(filepath.Join(w.runs, "acme-q1-minimal", "secure_link_code.txt"))
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestRunCommand_ConfigFileRuns(t *testing.T) {
	w := newWorkspace(t)
	w.upload(t, "acme", "acme_q1.csv", validCSV)
	w.upload(t, "globex", "globex_q2.csv", validCSV)

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
		"platform": "prod",
		"runs": [{"partner": "acme", "quarter": "q1"}, {"partner": "globex", "quarter": "q2"}]
	}`), 0o644))

	out, err := execute(t, "", append(w.roots(), "--config", cfgPath, "run", "--no-prompt")...)
	require.NoError(t, err, out)

	assert.Contains(t, out, "acme-q1-prod: COMPLETED_OK")
	assert.Contains(t, out, "globex-q2-prod: COMPLETED_OK")
}

func TestRunCommand_RequiresTargets(t *testing.T) {
	w := newWorkspace(t)

	_, err := execute(t, "", append(w.roots(), "run")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runs configured")

	_, err = execute(t, "", append(w.roots(), "run", "--partner", "acme")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--partner and --quarter")
}
