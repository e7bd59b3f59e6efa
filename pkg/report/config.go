package report

import (
	"time"

	"github.com/cryptodashboard/reportgen/pkg/llm"
)

// InterfaceMode selects how the page is generated from the report.
type InterfaceMode string

const (
	// InterfaceComponents generates HTML, JavaScript and CSS with separate calls.
	InterfaceComponents InterfaceMode = "components"
	// InterfaceCombined generates the whole page in one call and splits it afterwards.
	InterfaceCombined InterfaceMode = "combined"
)

// Config tunes a pipeline. Zero counts, an empty model and an empty interface
// mode take their DefaultConfig values. Negative backoffs do too, while a zero
// backoff disables the wait.
type Config struct {
	Model                string        `yaml:"model" validate:"required"`
	MaxAttempts          int           `yaml:"max_attempts" validate:"min=1,max=10"`
	MaxComponentAttempts int           `yaml:"max_component_attempts" validate:"min=1,max=10"`
	CallRetries          int           `yaml:"call_retries" validate:"min=1,max=10"`
	BackoffUnit          time.Duration `yaml:"backoff_unit" validate:"min=0"`
	SaveAttempts         int           `yaml:"save_attempts" validate:"min=1,max=10"`
	SaveBackoff          time.Duration `yaml:"save_backoff" validate:"min=0"`
	InterfaceMode        InterfaceMode `yaml:"interface_mode" validate:"oneof=components combined"`
}

func DefaultConfig() Config {
	return Config{
		Model:                llm.DefaultModel,
		MaxAttempts:          3,
		MaxComponentAttempts: 3,
		CallRetries:          3,
		BackoffUnit:          llm.DefaultBackoffUnit,
		SaveAttempts:         3,
		SaveBackoff:          time.Second,
		InterfaceMode:        InterfaceComponents,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.Model == "" {
		c.Model = defaults.Model
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}

	if c.MaxComponentAttempts <= 0 {
		c.MaxComponentAttempts = defaults.MaxComponentAttempts
	}

	if c.CallRetries <= 0 {
		c.CallRetries = defaults.CallRetries
	}

	if c.BackoffUnit < 0 {
		c.BackoffUnit = defaults.BackoffUnit
	}

	if c.SaveAttempts <= 0 {
		c.SaveAttempts = defaults.SaveAttempts
	}

	if c.SaveBackoff < 0 {
		c.SaveBackoff = defaults.SaveBackoff
	}

	if c.InterfaceMode == "" {
		c.InterfaceMode = defaults.InterfaceMode
	}

	return c
}
