package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/graph"
)

const (
	DefaultModel      = "decay"
	DefaultIntegrator = "rk4"
	DefaultDt         = 0.01
	DefaultDuration   = 10.0
	DefaultTolerance  = 1e-6
	DefaultMinDt      = 1e-8
	DefaultMaxDt      = 0.5
	DefaultStorageDir = ".celltx/runs"
)

var validate = validator.New()

type Config struct {
	Model            string             `yaml:"model" validate:"required"`
	Integrator       string             `yaml:"integrator" validate:"oneof=euler rk4 rk45"`
	Dt               float64            `yaml:"dt" validate:"gt=0"`
	Duration         float64            `yaml:"duration" validate:"gt=0"`
	Adaptive         bool               `yaml:"adaptive"`
	Tolerance        float64            `yaml:"tolerance" validate:"gt=0"`
	MinDt            float64            `yaml:"min_dt" validate:"gt=0"`
	MaxDt            float64            `yaml:"max_dt" validate:"gtefield=MinDt"`
	Parallel         int                `yaml:"parallel" validate:"gte=1"`
	Negativity       string             `yaml:"negativity" validate:"oneof=allow clamp reject"`
	HistoryRetention float64            `yaml:"history_retention" validate:"gte=0"`
	Params           map[string]float64 `yaml:"params,omitempty"`
	Initial          map[string]float64 `yaml:"initial,omitempty"`
	Prehistory       map[string]float64 `yaml:"prehistory,omitempty"`
	Storage          StorageConfig      `yaml:"storage"`
	LogLevel         string             `yaml:"log_level" validate:"oneof=debug info warn error"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=fs sqlite"`
	Dir     string `yaml:"dir" validate:"required"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      DefaultModel,
		Integrator: DefaultIntegrator,
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		Tolerance:  DefaultTolerance,
		MinDt:      DefaultMinDt,
		MaxDt:      DefaultMaxDt,
		Parallel:   1,
		Negativity: string(dynamo.NegativityClamp),
		Storage:    StorageConfig{
			Backend:    "fs",
			Dir:        DefaultStorageDir,
		},
		LogLevel:   "info",
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field bounds and that every initial and prehistory key is
// a well-formed entity identity.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	for _, keys := range []map[string]float64{c.Initial, c.Prehistory} {
		for id, v := range keys {
			if _, err := graph.ParseEntityID(id); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if v < 0 {
				return fmt.Errorf("config: %s: negative magnitude %g", id, v)
			}
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be below %s", field, strings.ToLower(e.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// Run converts the integration settings to a dynamo.Config.
func (c *Config) Run() dynamo.Config {
	return dynamo.Config{
		Dt:         c.Dt,
		Duration:   c.Duration,
		Tolerance:  c.Tolerance,
		MaxDt:      c.MaxDt,
		MinDt:      c.MinDt,
		Adaptive:   c.Adaptive,
		Negativity: dynamo.NegativityPolicy(c.Negativity),
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Params = cloneMap(c.Params)
	out.Initial = cloneMap(c.Initial)
	out.Prehistory = cloneMap(c.Prehistory)
	return &out
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
