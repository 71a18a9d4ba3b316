package validation

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// DefaultDateLayout is the only date format partners may use (MM/DD/YYYY).
const DefaultDateLayout = "01/02/2006"

// RuleSet is a partner data rule set, normally loaded from YAML.
type RuleSet struct {
	Name                 string                    `yaml:"name"`
	RequiredFields       []string                  `yaml:"required_fields"`
	Fields               map[string]FieldRule      `yaml:"fields"`
	ActivePastGraduation *ActivePastGraduationRule `yaml:"active_past_graduation,omitempty"`
	WarnEmptyOptional    bool                      `yaml:"warn_empty_optional"`
}

// FieldRule holds the checks applied to one canonical field.
type FieldRule struct {
	ConditionalRequired *Condition `yaml:"conditional_required,omitempty"`
	ValidValues         []string   `yaml:"valid_values,omitempty"`
	Date                *DateRule  `yaml:"date,omitempty"`
	Zip                 *ZipRule   `yaml:"zip,omitempty"`
	NoPOBox             bool       `yaml:"no_po_box,omitempty"`
}

// Condition makes a field required based on another field's value. Exactly one of
// Equals, StartsWith or NonEmpty is set.
type Condition struct {
	Field      string `yaml:"field"`
	Equals     string `yaml:"equals,omitempty"`
	StartsWith string `yaml:"starts_with,omitempty"`
	NonEmpty   bool   `yaml:"non_empty,omitempty"`
}

// DateRule constrains a date field.
type DateRule struct {
	Layout      string `yaml:"layout,omitempty"`
	MinYear     int    `yaml:"min_year,omitempty"`
	NotFuture   bool   `yaml:"not_future,omitempty"`
	BeforeToday bool   `yaml:"before_today,omitempty"`
	After       string `yaml:"after,omitempty"` // another date field this one must follow
}

// ZipRule constrains a US zip code field.
type ZipRule struct {
	StateField    string              `yaml:"state_field,omitempty"`
	StatePrefixes map[string][]string `yaml:"state_prefixes,omitempty"`
}

// ActivePastGraduationRule flags participants still marked active after their exit date.
type ActivePastGraduationRule struct {
	StatusField   string `yaml:"status_field"`
	ExitDateField string `yaml:"exit_date_field"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *RuleSet {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default rules are invalid: %v", err))
	}
	return rules
}

// LoadRules reads a rule set from path. An empty path returns the built-in rule set.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Message: fmt.Sprintf("rules file not found: %s", path), Cause: err}
		}
		return nil, &Error{Message: fmt.Sprintf("failed to read rules file %s", path), Cause: err}
	}
	return ParseRules(data)
}

// ParseRules parses and checks a YAML rule set.
func ParseRules(data []byte) (*RuleSet, error) {
	var rules RuleSet
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, &Error{Message: "failed to parse rules YAML", Cause: err}
	}
	if err := rules.check(); err != nil {
		return nil, &Error{Message: "invalid rule set", Cause: err}
	}
	return &rules, nil
}

func (r *RuleSet) check() error {
	if len(r.RequiredFields) == 0 {
		return fmt.Errorf("required_fields must not be empty")
	}
	for _, name := range r.fieldNames() {
		rule := r.Fields[name]
		if c := rule.ConditionalRequired; c != nil {
			if c.Field == "" {
				return fmt.Errorf("field %s: conditional_required.field is empty", name)
			}
			set := 0
			if c.Equals != "" {
				set++
			}
			if c.StartsWith != "" {
				set++
			}
			if c.NonEmpty {
				set++
			}
			if set != 1 {
				return fmt.Errorf("field %s: conditional_required needs exactly one of equals, starts_with, non_empty", name)
			}
		}
		if rule.Date != nil && rule.Date.Layout == "" {
			rule.Date.Layout = DefaultDateLayout
		}
		r.Fields[name] = rule
	}
	if a := r.ActivePastGraduation; a != nil && (a.StatusField == "" || a.ExitDateField == "") {
		return fmt.Errorf("active_past_graduation needs status_field and exit_date_field")
	}
	return nil
}

// fieldNames returns the rule keys in a stable order so violations come out deterministically.
func (r *RuleSet) fieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *RuleSet) isRequired(field string) bool {
	for _, f := range r.RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}

// holds reports whether the condition is met for a row value.
func (c *Condition) holds(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case c.Equals != "":
		return v == strings.ToLower(c.Equals)
	case c.StartsWith != "":
		return strings.HasPrefix(v, strings.ToLower(c.StartsWith))
	default:
		return v != ""
	}
}

func (c *Condition) describe() string {
	switch {
	case c.Equals != "":
		return fmt.Sprintf("%s is %s", c.Field, c.Equals)
	case c.StartsWith != "":
		return fmt.Sprintf("%s starts with %s", c.Field, c.StartsWith)
	default:
		return fmt.Sprintf("%s is provided", c.Field)
	}
}
