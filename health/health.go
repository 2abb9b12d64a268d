// Package health aggregates health checks of running services.
package health

import (
	"context"
	"time"
)

// Checker is implemented by anything that can report its own health.
type Checker interface {
	// Name returns the unique name of this health check
	Name() string

	// Check performs a health check and returns the current status
	Check(ctx context.Context) (*CheckResult, error)
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) (*CheckResult, error)

type namedCheck struct {
	name string
	fn   CheckFunc
}

// NewCheck returns a Checker named name that runs fn.
func NewCheck(name string, fn CheckFunc) Checker {
	return &namedCheck{name: name, fn: fn}
}

func (c *namedCheck) Name() string { return c.name }

func (c *namedCheck) Check(ctx context.Context) (*CheckResult, error) {
	return c.fn(ctx)
}

// Status represents the status of a health check
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// severity orders statuses so the worst one wins during aggregation.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	case StatusUnknown:
		return 2
	default:
		return 3
	}
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Details   map[string]any `json:"details,omitempty"`
}

// AggregatedStatus represents the aggregated status of all health checks
type AggregatedStatus struct {
	OverallStatus Status         `json:"overall_status"`
	Timestamp     time.Time      `json:"timestamp"`
	Checks        []*CheckResult `json:"checks"`
	Summary       StatusSummary  `json:"summary"`
}

// StatusSummary provides a summary of health check results
type StatusSummary struct {
	TotalChecks    int `json:"total_checks"`
	PassingChecks  int `json:"passing_checks"`
	WarningChecks  int `json:"warning_checks"`
	CriticalChecks int `json:"critical_checks"`
	UnknownChecks  int `json:"unknown_checks"`
}
