package modkit

import (
	"fmt"

	"github.com/GoCodeAlone/modkit/logging"
)

// AbortPolicy selects what happens when the application aborts.
type AbortPolicy string

const (
	// AbortTerminate exits the process with status 1.
	AbortTerminate AbortPolicy = "terminate"
	// AbortPropagate returns an error wrapping ErrAborted to the caller.
	AbortPropagate AbortPolicy = "propagate"
)

// Valid reports whether p is a known policy.
func (p AbortPolicy) Valid() bool {
	return p == AbortTerminate || p == AbortPropagate
}

// Config is the application configuration. It can be filled by a
// config.Loader from YAML, TOML, JSON, dotenv and environment feeders.
type Config struct {
	// Name identifies the application in logs and event sources.
	Name string `yaml:"name" toml:"name" json:"name" env:"NAME" validate:"omitempty,max=128"`

	// LogLevel overrides the level derived from the mode. Accepts the names
	// understood by logging.ParseLevel.
	LogLevel string `yaml:"logLevel" toml:"logLevel" json:"logLevel" env:"LOG_LEVEL"`

	AbortPolicy AbortPolicy `yaml:"abortPolicy" toml:"abortPolicy" json:"abortPolicy" env:"ABORT_POLICY" validate:"omitempty,oneof=terminate propagate"`

	// ModeVariable names the environment variable holding the mode.
	ModeVariable string `yaml:"modeVariable" toml:"modeVariable" json:"modeVariable" env:"MODE_VARIABLE"`

	// EnvFile is a dotenv file loaded into the process environment before
	// the application starts.
	EnvFile string `yaml:"envFile" toml:"envFile" json:"envFile" env:"ENV_FILE"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "modkit"
	}
	if c.AbortPolicy == "" {
		c.AbortPolicy = AbortTerminate
	}
	if c.ModeVariable == "" {
		c.ModeVariable = DefaultModeVariable
	}
}

// Validate checks the fields struct tags cannot express.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
	}
	if c.AbortPolicy != "" && !c.AbortPolicy.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAbortPolicy, c.AbortPolicy)
	}
	return nil
}
