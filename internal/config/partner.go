package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultEncodings is the decoding order used when a partner has no parsing config.
var DefaultEncodings = []string{"utf-8", "windows-1252", "latin-1"}

// FileStructure describes how a partner lays out its upload files.
type FileStructure struct {
	EncodingPreferences []string `yaml:"encoding_preferences,omitempty"`
	HeaderRow           int      `yaml:"header_row,omitempty"`      // 1-based
	DataStartRow        int      `yaml:"data_start_row,omitempty"` // 1-based
	Delimiter           string   `yaml:"delimiter,omitempty"`      // empty means auto-detect
}

// PartnerParsing is the per-partner parsing configuration read from <dir>/<partner>.yaml.
type PartnerParsing struct {
	Partner        string            `yaml:"partner"`
	FileStructure  FileStructure     `yaml:"file_structure"`
	ColumnMappings map[string]string `yaml:"column_mappings,omitempty"` // partner header -> canonical field
}

// DefaultPartnerParsing returns the parsing configuration used when none is on disk.
func DefaultPartnerParsing(partner string) *PartnerParsing {
	p := &PartnerParsing{Partner: partner}
	_ = p.normalize()
	return p
}

// LoadPartnerParsing reads the partner's YAML parsing config. A missing file yields the defaults.
func LoadPartnerParsing(dir, partner string) (*PartnerParsing, error) {
	if partner == "" {
		return nil, fmt.Errorf("partner is empty")
	}
	if dir == "" {
		return DefaultPartnerParsing(partner), nil
	}

	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml"} {
		data, err = os.ReadFile(filepath.Join(dir, partner+ext))
		if err == nil {
			break
		}
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultPartnerParsing(partner), nil
		}
		return nil, fmt.Errorf("failed to read partner config for %s: %w", partner, err)
	}

	var p PartnerParsing
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse partner config YAML for %s: %w", partner, err)
	}
	if p.Partner == "" {
		p.Partner = partner
	}
	if err := p.normalize(); err != nil {
		return nil, fmt.Errorf("partner config %s: %w", partner, err)
	}
	return &p, nil
}

// normalize fills defaults and validates the configuration.
func (p *PartnerParsing) normalize() error {
	fsCfg := &p.FileStructure
	if len(fsCfg.EncodingPreferences) == 0 {
		fsCfg.EncodingPreferences = append([]string(nil), DefaultEncodings...)
	}
	if fsCfg.HeaderRow == 0 {
		fsCfg.HeaderRow = 1
	}
	if fsCfg.DataStartRow == 0 {
		fsCfg.DataStartRow = fsCfg.HeaderRow + 1
	}
	if fsCfg.HeaderRow < 1 {
		return fmt.Errorf("header_row must be at least 1, got %d", fsCfg.HeaderRow)
	}
	if fsCfg.DataStartRow <= fsCfg.HeaderRow {
		return fmt.Errorf("data_start_row (%d) must come after header_row (%d)", fsCfg.DataStartRow, fsCfg.HeaderRow)
	}
	if fsCfg.Delimiter == `\t` {
		fsCfg.Delimiter = "\t"
	}
	if len([]rune(fsCfg.Delimiter)) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", fsCfg.Delimiter)
	}
	return nil
}
