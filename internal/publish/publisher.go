// Package publish simulates the shared document store used to exchange files with partners:
// an internal staff area, a partner-accessible area and per-partner upload folders.
package publish

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jonathan/partner-intake/internal/types"
)

// Destination selects which area a file is published to.
type Destination string

const (
	// DestinationInternal is visible to staff only.
	DestinationInternal Destination = "internal"
	// DestinationPartner is reachable by the partner through a secure link.
	DestinationPartner Destination = "partner_accessible"
)

// Upload describes a published file.
type Upload struct {
	Destination Destination
	Path        string
	URL         string
}

// Result converts the upload into the tool-call result.
func (u *Upload) Result() *types.ToolResult {
	return types.Succeeded(fmt.Sprintf("Uploaded %s to %s", filepath.Base(u.Path), u.Destination), map[string]any{
		"destination": string(u.Destination),
		"path":        u.Path,
		"url":         u.URL,
	})
}

// Publisher copies files into the simulated document store rooted at Root.
type Publisher struct {
	Root string
}

// NewPublisher creates a Publisher rooted at simulationRoot.
func NewPublisher(simulationRoot string) *Publisher {
	return &Publisher{Root: simulationRoot}
}

// UploadsRoot is the shared root partners upload into, partitioned by partner.
func (p *Publisher) UploadsRoot() string {
	return filepath.Join(p.Root, "uploads")
}

// UploadsDir is the partner's upload folder.
func (p *Publisher) UploadsDir(partner string) string {
	return filepath.Join(p.UploadsRoot(), partner)
}

// Dir returns the folder a run's files are published to.
func (p *Publisher) Dir(dest Destination, runID string) string {
	return filepath.Join(p.Root, string(dest), runID)
}

// PublishedName is the destination file name: <partner>_<quarter>_<name>.
func PublishedName(id types.RunIdentity, src string) string {
	return fmt.Sprintf("%s_%s_%s", id.Partner, id.Quarter, filepath.Base(src))
}

// Publish copies src into the destination area for the run. The copy is written to a temporary
// file and renamed, so readers never see a partial report.
func (p *Publisher) Publish(src string, dest Destination, id types.RunIdentity) (*Upload, error) {
	if dest != DestinationInternal && dest != DestinationPartner {
		return nil, fmt.Errorf("unknown destination %q", dest)
	}
	dir := p.Dir(dest, id.RunID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s folder: %w", dest, err)
	}
	target := filepath.Join(dir, PublishedName(id, src))
	if err := copyFile(src, target); err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", filepath.Base(src), err)
	}
	return &Upload{Destination: dest, Path: target, URL: FileURL(target)}, nil
}

// FileURL returns the file:// URL of path.
func FileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
