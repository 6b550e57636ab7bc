package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sandcalc/internal/engine"
	"github.com/roach88/sandcalc/internal/sandbox"
)

// Config holds engine settings read from a --config file.
// Zero fields keep their defaults.
type Config struct {
	// FormulaTimeout bounds each formula and scenario evaluation.
	FormulaTimeout time.Duration `yaml:"formula_timeout" validate:"gte=0"`

	// InjectionTimeout bounds dependency injection.
	InjectionTimeout time.Duration `yaml:"injection_timeout" validate:"gte=0"`

	// LoadDelay delays the sandbox's loaded signal. Used to exercise load
	// timeouts.
	LoadDelay time.Duration `yaml:"load_delay" validate:"gte=0"`

	// MaxLogLines caps captured console lines per evaluation.
	MaxLogLines int `yaml:"max_log_lines" validate:"gte=0"`

	// Debug adds JavaScript stacks to runtime errors.
	Debug bool `yaml:"debug"`

	// Log captures console output.
	Log bool `yaml:"log"`

	// DB is the default component store path.
	DB string `yaml:"db"`
}

var configValidate = validator.New()

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		FormulaTimeout:   engine.DefaultFormulaTimeout,
		InjectionTimeout: engine.DefaultInjectionTimeout,
		MaxLogLines:      sandbox.DefaultMaxLogLines,
	}
}

// LoadConfig reads path and overlays it on DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var file Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := configValidate.Struct(file); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return cfg, fmt.Errorf("invalid config: %s must be %s %s", verrs[0].Field(), verrs[0].Tag(), verrs[0].Param())
		}
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	cfg.merge(file)
	return cfg, nil
}

func (c *Config) merge(o Config) {
	if o.FormulaTimeout > 0 {
		c.FormulaTimeout = o.FormulaTimeout
	}
	if o.InjectionTimeout > 0 {
		c.InjectionTimeout = o.InjectionTimeout
	}
	if o.LoadDelay > 0 {
		c.LoadDelay = o.LoadDelay
	}
	if o.MaxLogLines > 0 {
		c.MaxLogLines = o.MaxLogLines
	}
	c.Debug = c.Debug || o.Debug
	c.Log = c.Log || o.Log
	if o.DB != "" {
		c.DB = o.DB
	}
}
