package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	validCSV   = "First Name,Last Name,Date of Birth,Zip\nAda,Lovelace,12/10/1985,98101\nGrace,Hopper,12/09/1976,98102-1234\n"
	invalidCSV = "First Name,Last Name,Date of Birth,Zip\nAda,,12/10/1985,98101\nGrace,Hopper,13/45/1976,00000\n"
)

// workspace is a temporary runs root and SharePoint simulation for one test.
type workspace struct {
	runs string
	sim  string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("SECURE_LINK_SECRET", "")
	t.Setenv("ACCESS_CODE_BCRYPT_COST", "10")
	root := t.TempDir()
	return &workspace{runs: filepath.Join(root, "runs"), sim: filepath.Join(root, "sim")}
}

func (w *workspace) upload(t *testing.T, partner, name, content string) string {
	t.Helper()
	dir := filepath.Join(w.sim, "uploads", partner)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// roots returns the path flags pointing at the workspace.
func (w *workspace) roots() []string {
	return []string{"--runs-root", w.runs, "--simulation-root", w.sim}
}

// execute runs the CLI in-process with stdin and returns its output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
