package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrHealthCheckNotFound  = errors.New("health check not found")
	ErrDuplicateHealthCheck = errors.New("health check already registered")
	ErrInvalidHealthCheck   = errors.New("health check must have a name")
)

// AggregatorConfig represents configuration for the health aggregator
type AggregatorConfig struct {
	// Timeout bounds each individual check. Zero means no timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Aggregator runs registered checks in registration order and folds their
// results into a single worst-state status.
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	last     *AggregatedStatus
	config   AggregatorConfig
	now      func() time.Time
}

// NewAggregator creates a new health aggregator
func NewAggregator(config *AggregatorConfig) *Aggregator {
	a := &Aggregator{now: time.Now}
	if config != nil {
		a.config = *config
	}
	return a
}

// RegisterCheck registers a health check with the aggregator
func (a *Aggregator) RegisterCheck(ctx context.Context, checker Checker) error {
	if checker == nil || checker.Name() == "" {
		return ErrInvalidHealthCheck
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.checkers {
		if c.Name() == checker.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateHealthCheck, checker.Name())
		}
	}
	a.checkers = append(a.checkers, checker)
	return nil
}

// UnregisterCheck removes a health check from the aggregator
func (a *Aggregator) UnregisterCheck(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, c := range a.checkers {
		if c.Name() == name {
			a.checkers = append(a.checkers[:i], a.checkers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
}

// Reset removes every check and forgets the last status.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = nil
	a.last = nil
}

// Names returns the registered check names in order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.checkers))
	for i, c := range a.checkers {
		names[i] = c.Name()
	}
	return names
}

// CheckAll runs all registered health checks and returns aggregated status.
// With no checks registered the overall status is unknown.
func (a *Aggregator) CheckAll(ctx context.Context) *AggregatedStatus {
	a.mu.RLock()
	checkers := make([]Checker, len(a.checkers))
	copy(checkers, a.checkers)
	a.mu.RUnlock()

	status := &AggregatedStatus{
		OverallStatus: StatusUnknown,
		Timestamp:     a.now(),
		Checks:        make([]*CheckResult, 0, len(checkers)),
	}

	for i, checker := range checkers {
		result := a.run(ctx, checker)
		status.Checks = append(status.Checks, result)

		if i == 0 || result.Status.severity() > status.OverallStatus.severity() {
			status.OverallStatus = result.Status
		}

		status.Summary.TotalChecks++
		switch result.Status {
		case StatusHealthy:
			status.Summary.PassingChecks++
		case StatusWarning:
			status.Summary.WarningChecks++
		case StatusCritical:
			status.Summary.CriticalChecks++
		default:
			status.Summary.UnknownChecks++
		}
	}

	a.mu.Lock()
	a.last = status
	a.mu.Unlock()
	return status
}

// CheckOne runs a specific health check by name
func (a *Aggregator) CheckOne(ctx context.Context, name string) (*CheckResult, error) {
	a.mu.RLock()
	var checker Checker
	for _, c := range a.checkers {
		if c.Name() == name {
			checker = c
			break
		}
	}
	a.mu.RUnlock()

	if checker == nil {
		return nil, fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
	}
	return a.run(ctx, checker), nil
}

// Last returns the status computed by the most recent CheckAll, if any.
func (a *Aggregator) Last() (*AggregatedStatus, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.last != nil
}

// run executes a single check. Errors and nil results are reported as
// critical.
func (a *Aggregator) run(ctx context.Context, checker Checker) *CheckResult {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	start := a.now()
	result, err := checker.Check(ctx)
	duration := a.now().Sub(start)

	if err != nil {
		return &CheckResult{
			Name:      checker.Name(),
			Status:    StatusCritical,
			Error:     err.Error(),
			Timestamp: start,
			Duration:  duration,
		}
	}
	if result == nil {
		result = &CheckResult{Status: StatusUnknown}
	}

	out := *result
	out.Name = checker.Name()
	if out.Status == "" {
		out.Status = StatusUnknown
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = start
	}
	if out.Duration == 0 {
		out.Duration = duration
	}
	return &out
}
