package types

import (
	"github.com/go-playground/validator/v10"
)

// RunIdentity names one partner/quarter/platform intake attempt. It is immutable for the life of a run.
type RunIdentity struct {
	Partner  string `json:"partner" validate:"required,excludesall=/ "`
	Quarter  string `json:"quarter" validate:"required,excludesall=/ "`
	Platform string `json:"platform" validate:"required,excludesall=/ "`
	Year     string `json:"year,omitempty"`
}

// RunID returns the deterministic run key partner-quarter-platform.
func (id RunIdentity) RunID() string {
	return id.Partner + "-" + id.Quarter + "-" + id.Platform
}

// Validate validates the RunIdentity using the validator.
func (id *RunIdentity) Validate() error {
	validate := validator.New()
	return validate.Struct(id)
}
