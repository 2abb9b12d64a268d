package statusserver

import "time"

// Config defines the configuration for the status server. Provide a *Config
// in the container to override the defaults.
type Config struct {
	// Address is the listen address. Use port 0 to pick a free port.
	Address string `json:"address" yaml:"address" toml:"address" env:"ADDRESS"`

	// BasePath prefixes every route, e.g. "/_modkit"
	BasePath string `json:"basePath" yaml:"basePath" toml:"basePath" env:"BASE_PATH" validate:"omitempty,startswith=/"`

	// ReadHeaderTimeout bounds how long reading request headers may take
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout" toml:"readHeaderTimeout" env:"READ_HEADER_TIMEOUT"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout" toml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8081"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}
