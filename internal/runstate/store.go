// Package runstate is the durable record of every run: a small key-value store of JSON documents
// keyed by run id, plus the derivation of a run's lifecycle state from those documents.
package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonathan/partner-intake/internal/logging"
	"github.com/jonathan/partner-intake/internal/schemas"
	"go.uber.org/zap"
)

// Key names a document within a run directory.
type Key string

const (
	KeyManifest    Key = "manifest.json"
	KeyResumeState Key = "resume_state.json"
)

// ErrNotFound is returned when a run document does not exist.
var ErrNotFound = errors.New("runstate: document not found")

var keySchemas = map[Key]schemas.Document{
	KeyManifest:    schemas.DocumentManifest,
	KeyResumeState: schemas.DocumentResumeState,
}

// Store keeps run documents under <root>/<run_id>/<key>. Every Put is a write to a temporary file
// followed by a rename, so readers observe either the previous or the new document.
//
// A Store assumes it is the only writer for a given run.
type Store struct {
	root   string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a Store rooted at root. A nil clock uses time.Now.
func NewStore(root string, logger *zap.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{root: root, logger: logging.OrNop(logger), now: now}
}

// Root returns the directory holding all runs.
func (s *Store) Root() string {
	return s.root
}

// RunDir returns the evidence directory of a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

func (s *Store) path(runID string, key Key) string {
	return filepath.Join(s.RunDir(runID), string(key))
}

// Exists reports whether a document is present.
func (s *Store) Exists(runID string, key Key) bool {
	info, err := os.Stat(s.path(runID, key))
	return err == nil && !info.IsDir()
}

// Get decodes a document into v. It returns ErrNotFound when the document is absent.
// Documents that drift from their schema are still returned; the drift is logged.
func (s *Store) Get(runID string, key Key, v any) error {
	path := s.path(runID, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if doc, ok := keySchemas[key]; ok {
		if err := schemas.ValidateDocument(doc, data); err != nil {
			s.logger.Warn("run document does not match schema",
				zap.String("run_id", runID), zap.String("document", string(key)), zap.Error(err))
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Put writes a document atomically.
func (s *Store) Put(runID string, key Key, v any) error {
	if runID == "" {
		return fmt.Errorf("run id is empty")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return WriteFileAtomic(s.path(runID, key), append(data, '\n'))
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(runID string, key Key) error {
	if err := os.Remove(s.path(runID, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns the ids of runs that have a manifest, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && s.Exists(e.Name(), KeyManifest) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// WriteFileAtomic writes data to a temporary file in the target directory, syncs it and renames it
// over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
