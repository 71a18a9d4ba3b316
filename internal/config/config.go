// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxResumeAttempts is the retry ceiling for partner corrections.
const DefaultMaxResumeAttempts = 3

// Duration is a time.Duration that reads from JSON as "30s" or as a number of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			if secs, convErr := strconv.ParseFloat(v, 64); convErr == nil {
				d.Duration = time.Duration(secs * float64(time.Second))
				return nil
			}
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// RunTarget selects one partner/quarter pair for the orchestrator to drive.
type RunTarget struct {
	Partner string `json:"partner" validate:"required,excludesall=/ "`
	Quarter string `json:"quarter" validate:"required,excludesall=/ "`
}

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Paths
	RunsRoot         string `json:"runs_root,omitempty"`          // Evidence bundles, one directory per run_id
	SimulationRoot   string `json:"simulation_root,omitempty"`    // SharePoint simulation root (uploads/, internal/, partner_accessible/)
	PartnerConfigDir string `json:"partner_config_dir,omitempty"` // Per-partner parsing YAML files
	RulesPath        string `json:"rules_path,omitempty"`         // Validation rule set YAML (embedded default when empty)

	// Run identity
	Platform string      `json:"platform,omitempty" validate:"omitempty,excludesall=/ "`
	Year     string      `json:"year,omitempty" validate:"omitempty,numeric,len=4"`
	Runs     []RunTarget `json:"runs,omitempty" validate:"dive"`

	// Orchestration
	Strategy          string   `json:"strategy,omitempty" validate:"omitempty,oneof=event poll"`
	PollInterval      Duration `json:"poll_interval,omitempty"`
	Debounce          Duration `json:"debounce,omitempty"`
	MaxResumeAttempts int      `json:"max_resume_attempts,omitempty" validate:"gte=0,lte=10"`

	// Partner communication
	LinkBaseURL  string `json:"link_base_url,omitempty" validate:"omitempty,url"` // Public base URL of the secure link server
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`                         // Enables LLM email summaries
	Model        string `json:"model,omitempty"`                                  // Gemini model override

	// Behavior
	Verbose bool `json:"verbose,omitempty"` // Debug-level logging
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		RunsRoot:          "runs",
		SimulationRoot:    "sharepoint_simulation",
		PartnerConfigDir:  "partners",
		Platform:          "minimal",
		Strategy:          "event",
		PollInterval:      Duration{30 * time.Second},
		Debounce:          Duration{500 * time.Millisecond},
		MaxResumeAttempts: DefaultMaxResumeAttempts,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Required run identity fields are checked by the CLI after flags are merged.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.PollInterval.Duration < 0 {
		return fmt.Errorf("config error: 'poll_interval' must be non-negative")
	}
	if c.Debounce.Duration < 0 {
		return fmt.Errorf("config error: 'debounce' must be non-negative")
	}

	if c.RulesPath != "" {
		if _, err := os.Stat(c.RulesPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: rules file not found: %s", c.RulesPath)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.RunsRoot == "" {
		result.RunsRoot = defaults.RunsRoot
	}
	if result.SimulationRoot == "" {
		result.SimulationRoot = defaults.SimulationRoot
	}
	if result.PartnerConfigDir == "" {
		result.PartnerConfigDir = defaults.PartnerConfigDir
	}
	if result.RulesPath == "" {
		result.RulesPath = defaults.RulesPath
	}
	if result.Platform == "" {
		result.Platform = defaults.Platform
	}
	if result.Year == "" {
		result.Year = defaults.Year
	}
	if result.Strategy == "" {
		result.Strategy = defaults.Strategy
	}
	if result.LinkBaseURL == "" {
		result.LinkBaseURL = defaults.LinkBaseURL
	}
	if result.GeminiAPIKey == "" {
		result.GeminiAPIKey = defaults.GeminiAPIKey
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if len(result.Runs) == 0 {
		result.Runs = defaults.Runs
	}

	// Durations and ints: use default if zero
	if result.PollInterval.Duration == 0 {
		result.PollInterval = defaults.PollInterval
	}
	if result.Debounce.Duration == 0 {
		result.Debounce = defaults.Debounce
	}
	if result.MaxResumeAttempts == 0 {
		if defaults.MaxResumeAttempts > 0 {
			result.MaxResumeAttempts = defaults.MaxResumeAttempts
		} else {
			result.MaxResumeAttempts = DefaultMaxResumeAttempts
		}
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
