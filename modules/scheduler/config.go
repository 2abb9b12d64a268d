package scheduler

import "time"

// Config defines the configuration for the scheduler service. Provide a
// *Config in the container to override the defaults.
type Config struct {
	// WorkerCount is the number of goroutines executing jobs
	WorkerCount int `json:"workerCount" yaml:"workerCount" toml:"workerCount" env:"WORKER_COUNT" validate:"min=0"`

	// QueueSize is the maximum number of jobs waiting for a worker
	QueueSize int `json:"queueSize" yaml:"queueSize" toml:"queueSize" env:"QUEUE_SIZE" validate:"min=0"`

	// HistorySize is how many executions are kept per job
	HistorySize int `json:"historySize" yaml:"historySize" toml:"historySize" env:"HISTORY_SIZE" validate:"min=0"`

	// WithSeconds enables six-field cron specs with a leading seconds field
	WithSeconds bool `json:"withSeconds" yaml:"withSeconds" toml:"withSeconds" env:"WITH_SECONDS"`

	// ShutdownTimeout bounds how long Stop waits for running jobs
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout" toml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.WorkerCount == 0 {
		c.WorkerCount = 5
	}
	if c.QueueSize == 0 {
		c.QueueSize = 100
	}
	if c.HistorySize == 0 {
		c.HistorySize = 20
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}
