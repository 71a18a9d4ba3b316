package signature

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/partner-intake/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var base = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

func writeUpload(t *testing.T, dir, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

const partnerHeader = "First Name,Last Name,Date of Birth (MM/DD/YYYY),Zip\nA,B,01/01/1990,12345\n"

func TestSignature(t *testing.T) {
	dir := t.TempDir()
	path := writeUpload(t, dir, "q1.csv", partnerHeader, base)
	m := NewMatcher(nil, nil)

	sig := m.Signature(path)
	require.NotNil(t, sig)
	assert.Equal(t, []string{"date_of_birth", "first_name", "last_name", "zip"}, sig.Columns)
	assert.True(t, sig.ModTime.Equal(base))

	assert.Nil(t, m.Signature(filepath.Join(dir, "missing.csv")))
	assert.Nil(t, m.Signature(dir))
	assert.Nil(t, m.Signature(writeUpload(t, dir, "readme.md", "# hi", base)))
}

func TestFindInitial(t *testing.T) {
	dir := t.TempDir()
	m := NewMatcher(nil, nil)

	assert.Nil(t, m.FindInitial(dir))
	assert.Nil(t, m.FindInitial(filepath.Join(dir, "does-not-exist")))

	writeUpload(t, dir, "junk.csv", "Name,Email\nx,y\n", base.Add(3*time.Hour))
	older := writeUpload(t, dir, "data_v1.csv", partnerHeader, base)
	newer := writeUpload(t, dir, "zz_export.csv", partnerHeader, base.Add(time.Hour))
	writeUpload(t, dir, "~$zz_export.csv", partnerHeader, base.Add(4*time.Hour))

	got := m.FindInitial(dir)
	require.NotNil(t, got)
	assert.Equal(t, newer, got.Path)
	assert.NotEqual(t, older, got.Path)
}

func TestFindCorrected_SupersetAndMtimeGuard(t *testing.T) {
	dir := t.TempDir()
	m := NewMatcher(nil, nil)
	original := writeUpload(t, dir, "original.csv", partnerHeader, base)

	resume := &types.ResumeState{
		RunID:                  "acme-q1-minimal",
		OriginalFilePath:       original,
		LastCorrectedFileMtime: base,
	}

	// Nothing newer than the original yet.
	assert.Nil(t, m.FindCorrected(dir, resume))

	// Missing the zip column the original had.
	writeUpload(t, dir, "fewer.csv", "First Name,Last Name,Date of Birth\nA,B,C\n", base.Add(time.Hour))
	assert.Nil(t, m.FindCorrected(dir, resume))

	// Adds a column: accepted.
	fixed := writeUpload(t, dir, "fixed.csv",
		"First Name,Last Name,Date of Birth,Zip,Notes\nA,B,01/01/1990,12345,x\n", base.Add(2*time.Hour))
	got := m.FindCorrected(dir, resume)
	require.NotNil(t, got)
	assert.Equal(t, fixed, got.Path)

	// Once processed, the same file is never returned again.
	resume.LastCorrectedFilePath = fixed
	resume.LastCorrectedFileMtime = got.ModTime
	assert.Nil(t, m.FindCorrected(dir, resume))
}

func TestFindCorrected_NeverReturnsOriginal(t *testing.T) {
	dir := t.TempDir()
	m := NewMatcher(nil, nil)
	original := writeUpload(t, dir, "original.csv", partnerHeader, base.Add(time.Hour))

	resume := &types.ResumeState{OriginalFilePath: original, LastCorrectedFileMtime: base}
	assert.Nil(t, m.FindCorrected(dir, resume), "original is excluded even when it is newer than the guard")
}

func TestFindCorrected_FallbackWhenOriginalDeleted(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zap.WarnLevel)
	m := NewMatcher(nil, zap.New(core))

	resume := &types.ResumeState{
		RunID:                  "acme-q1-minimal",
		OriginalFilePath:       filepath.Join(dir, "deleted.csv"),
		LastCorrectedFileMtime: base,
	}
	probeOnly := writeUpload(t, dir, "fixed.csv", "First Name,Last Name,Date of Birth\nA,B,C\n", base.Add(time.Hour))

	got := m.FindCorrected(dir, resume)
	require.NotNil(t, got)
	assert.Equal(t, probeOnly, got.Path)
	require.Equal(t, 1, logs.FilterField(zap.String("fallback", "probe")).Len())
}

func TestFindCorrected_NilResume(t *testing.T) {
	m := NewMatcher(nil, nil)
	assert.Nil(t, m.FindCorrected(t.TempDir(), nil))
}

func TestFindCorrected_TieBreakIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	m := NewMatcher(nil, nil)
	resume := &types.ResumeState{LastCorrectedFileMtime: base}
	writeUpload(t, dir, "a.csv", partnerHeader, base.Add(time.Hour))
	b := writeUpload(t, dir, "b.csv", partnerHeader, base.Add(time.Hour))

	for i := 0; i < 3; i++ {
		got := m.FindCorrected(dir, resume)
		require.NotNil(t, got)
		assert.Equal(t, b, got.Path)
	}
}

func TestIgnoredName(t *testing.T) {
	assert.True(t, IgnoredName("/x/.DS_Store"))
	assert.True(t, IgnoredName("~$report.xlsx"))
	assert.False(t, IgnoredName("/x/report.xlsx"))
}
