// Package signature fingerprints candidate partner uploads by their header row and modification time,
// and picks initial or corrected files out of a partner's upload folder without relying on file names.
package signature

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/ingestion"
	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// RequiredProbe is the set of normalized columns every partner data file must carry.
var RequiredProbe = []string{"first_name", "last_name", "date_of_birth"}

// Matcher computes file signatures and selects candidate uploads.
type Matcher struct {
	parsing *config.PartnerParsing
	logger  *zap.Logger
}

// NewMatcher creates a Matcher that reads headers using the partner's parsing configuration.
func NewMatcher(parsing *config.PartnerParsing, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{parsing: parsing, logger: logger}
}

// Signature reads only the header row of path. It returns nil when the file is missing,
// unreadable or in an unsupported format; such files are simply not candidates.
func (m *Matcher) Signature(path string) *types.FileSignature {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}
	keys, err := ingestion.ReadHeader(path, m.parsing)
	if err != nil {
		m.logger.Debug("skipping unreadable candidate", zap.String("path", path), zap.Error(err))
		return nil
	}
	return &types.FileSignature{
		Path:    path,
		Columns: ingestion.SortedUnique(keys),
		ModTime: info.ModTime(),
	}
}

// Candidates returns the signatures of every readable file directly inside dir.
func (m *Matcher) Candidates(dir string) []types.FileSignature {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []types.FileSignature
	for _, entry := range entries {
		if entry.IsDir() || ignoredName(entry.Name()) {
			continue
		}
		if sig := m.Signature(filepath.Join(dir, entry.Name())); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}

// FindInitial returns the newest file in dir that carries the required probe columns.
func (m *Matcher) FindInitial(dir string) *types.FileSignature {
	var matches []types.FileSignature
	for _, sig := range m.Candidates(dir) {
		if sig.HasAll(RequiredProbe) {
			matches = append(matches, sig)
		}
	}
	return newest(matches)
}

// FindCorrected returns the newest file in dir that could be a correction of the run's original upload.
//
// A candidate must be newer than resume.LastCorrectedFileMtime, must not be the original file, and
// must carry every column of the original. When the original is gone the probe columns are used instead.
func (m *Matcher) FindCorrected(dir string, resume *types.ResumeState) *types.FileSignature {
	if resume == nil {
		return nil
	}

	expected := RequiredProbe
	if resume.OriginalFilePath != "" {
		if orig := m.Signature(resume.OriginalFilePath); orig != nil {
			expected = orig.Columns
		} else {
			m.logger.Warn("original upload unavailable, matching corrected files on required columns only",
				zap.String("run_id", resume.RunID),
				zap.String("original_file_path", resume.OriginalFilePath),
				zap.String("fallback", "probe"))
		}
	}

	var matches []types.FileSignature
	for _, sig := range m.Candidates(dir) {
		if samePath(sig.Path, resume.OriginalFilePath) {
			continue
		}
		if !sig.ModTime.After(resume.LastCorrectedFileMtime) {
			continue
		}
		if sig.HasAll(expected) {
			matches = append(matches, sig)
		}
	}
	return newest(matches)
}

// newest picks the greatest mtime; equal mtimes fall back to the lexically greatest path.
func newest(sigs []types.FileSignature) *types.FileSignature {
	if len(sigs) == 0 {
		return nil
	}
	sort.Slice(sigs, func(i, j int) bool {
		if !sigs[i].ModTime.Equal(sigs[j].ModTime) {
			return sigs[i].ModTime.After(sigs[j].ModTime)
		}
		return sigs[i].Path > sigs[j].Path
	})
	best := sigs[0]
	return &best
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// ignoredName filters editor lock files and hidden files that appear while a partner is saving.
func ignoredName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}

// IgnoredName reports whether the watcher should disregard a file by name alone.
func IgnoredName(name string) bool {
	return ignoredName(filepath.Base(name))
}
