package modkit

import (
	"context"

	"github.com/GoCodeAlone/modkit/container"
)

// Startable is implemented by components that begin work on Start.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable is implemented by components that release resources on Stop.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// Service is a long-lived component scoped to the module that declared it.
// Services may also implement PreBootHook, BootHook, PreShutdownHook and
// ShutdownHook.
type Service interface {
	Startable
	Stoppable
}

// ServiceRegistration records a service declared by a module.
type ServiceRegistration struct {
	Module   Module
	Token    container.Token
	Instance Service

	started bool
}

// Name returns the service token as a string.
func (r ServiceRegistration) Name() string {
	return r.Token.String()
}

// Started reports whether the service is currently started.
func (r ServiceRegistration) Started() bool {
	return r.started
}

type moduleCtxKey struct{}

// WithModule returns a context carrying the module that owns the lifecycle
// step being run.
func WithModule(ctx context.Context, m Module) context.Context {
	return context.WithValue(ctx, moduleCtxKey{}, m)
}

// ModuleFromContext returns the owning module stored by WithModule. Service
// hooks receive a context carrying their module.
func ModuleFromContext(ctx context.Context) (Module, bool) {
	m, ok := ctx.Value(moduleCtxKey{}).(Module)
	return m, ok
}
