// Package config loads the YAML tuning file of the report generator.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cryptodashboard/reportgen/pkg/indexing"
	"github.com/cryptodashboard/reportgen/pkg/market"
	"github.com/cryptodashboard/reportgen/pkg/report"
	"github.com/cryptodashboard/reportgen/pkg/scheduler"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config groups every tunable of the service. Process level settings such as
// ports and connection URLs come from flags instead.
type Config struct {
	Pipeline  report.Config    `yaml:"pipeline"`
	Snapshot  market.Config    `yaml:"snapshot"`
	Indexing  indexing.Config  `yaml:"indexing"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

func Default() Config {
	return Config{
		Pipeline:  report.DefaultConfig(),
		Snapshot:  market.DefaultConfig(),
		Indexing:  indexing.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, fmt.Sprintf("%s failed on %s", fieldErr.Namespace(), fieldErr.Tag()))
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, "; "))
}
