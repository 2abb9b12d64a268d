package eventlogger

import (
	"time"

	"github.com/GoCodeAlone/modkit/logging"
)

// Config holds configuration for the event logger.
type Config struct {
	// Disabled turns the logger into a no-op service
	Disabled bool `json:"disabled" yaml:"disabled" toml:"disabled" env:"DISABLED"`

	// Level is the minimum level of logged events (debug, info, warn, error)
	Level string `json:"level" yaml:"level" toml:"level" env:"LEVEL"`

	// EventTypes limits logging to these event types. Empty logs every event.
	EventTypes []string `json:"eventTypes" yaml:"eventTypes" toml:"eventTypes"`

	// BufferSize is the number of events waiting to be written. When full
	// the oldest event is dropped.
	BufferSize int `json:"bufferSize" yaml:"bufferSize" toml:"bufferSize" env:"BUFFER_SIZE" validate:"min=0"`

	// FlushInterval is how often outputs are flushed
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval" toml:"flushInterval" env:"FLUSH_INTERVAL"`

	// DrainTimeout bounds how long Stop waits for buffered events. Zero
	// waits until the buffer is empty.
	DrainTimeout time.Duration `json:"drainTimeout" yaml:"drainTimeout" toml:"drainTimeout" env:"DRAIN_TIMEOUT"`

	// Outputs lists where entries are written. Empty writes text to stdout.
	Outputs []OutputConfig `json:"outputs" yaml:"outputs" toml:"outputs" validate:"dive"`
}

// OutputConfig configures one output.
type OutputConfig struct {
	// Type is console or file
	Type string `json:"type" yaml:"type" toml:"type" validate:"oneof=console file"`

	// Format is text or json
	Format string `json:"format" yaml:"format" toml:"format" validate:"omitempty,oneof=text json"`

	// Level overrides Config.Level for this output
	Level string `json:"level" yaml:"level" toml:"level"`

	// Path is the file written by a file output
	Path string `json:"path" yaml:"path" toml:"path" validate:"required_if=Type file"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.BufferSize == 0 {
		c.BufferSize = 100
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 5 * time.Second
	}
	if len(c.Outputs) == 0 {
		c.Outputs = []OutputConfig{{Type: "console"}}
	}
	for i := range c.Outputs {
		if c.Outputs[i].Format == "" {
			c.Outputs[i].Format = "text"
			if c.Outputs[i].Type == "file" {
				c.Outputs[i].Format = "json"
			}
		}
	}
}

// Validate checks the levels, which struct tags cannot express.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Level); err != nil {
		return err
	}
	for i, out := range c.Outputs {
		if out.Level == "" {
			continue
		}
		if _, err := logging.ParseLevel(out.Level); err != nil {
			return &OutputError{Index: i, Err: err}
		}
	}
	return nil
}
