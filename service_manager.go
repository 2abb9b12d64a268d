package modkit

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	otelattr "go.opentelemetry.io/otel/attribute"

	"github.com/GoCodeAlone/modkit/container"
	"github.com/GoCodeAlone/modkit/registry"
)

type serviceEntry struct {
	module   Module
	token    container.Token
	instance Service
	started  bool
}

func (e *serviceEntry) snapshot() ServiceRegistration {
	return ServiceRegistration{Module: e.module, Token: e.token, Instance: e.instance, started: e.started}
}

// serviceGroup is the run of services owned by one module.
type serviceGroup struct {
	module  Module
	entries []*serviceEntry
}

// ServiceManager registers the services declared by modules and starts and
// stops them as a batch.
//
// Services start and stop in registration order, grouped by owning module.
// Stop order is deliberately the same as start order; services must not rely
// on being stopped after the services they use.
type ServiceManager struct {
	resolver container.Resolver
	tel      *telemetry
	status   *registry.Registry

	mu      sync.Mutex
	entries []*serviceEntry
	byToken map[container.Token]*serviceEntry
}

// NewServiceManager creates a ServiceManager that resolves services through
// resolver.
func NewServiceManager(resolver container.Resolver, logger Logger) *ServiceManager {
	return &ServiceManager{
		resolver: resolver,
		tel:      newTelemetry(logger),
		status:   registry.NewRegistry(),
		byToken:  make(map[container.Token]*serviceEntry),
	}
}

// RegisterFromModule records the services declared by node, in declaration
// order. A token already registered, by node or by another module, is
// skipped.
func (s *ServiceManager) RegisterFromModule(node Module) {
	sa, ok := node.(ServiceAware)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range sa.Services() {
		if token == nil {
			continue
		}
		if existing, dup := s.byToken[token]; dup {
			s.tel.log().Debug("Skipping duplicate service registration",
				"service", token.String(), "module", node.Name(), "owner", existing.module.Name())
			continue
		}
		entry := &serviceEntry{module: node, token: token}
		s.entries = append(s.entries, entry)
		s.byToken[token] = entry
	}
}

// ResolveAll resolves every registered service so that dependency errors
// surface before anything starts. Each resolution runs with a context
// carrying the owning module, so a constructor taking a context.Context can
// call ModuleFromContext. A service already built as a dependency of an
// earlier one sees that earlier service's module instead; ModuleOf is exact.
func (s *ServiceManager) ResolveAll(ctx context.Context) error {
	s.mu.Lock()
	pending := make([]*serviceEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.instance == nil {
			pending = append(pending, e)
		}
	}
	s.mu.Unlock()

	for _, e := range pending {
		value, err := s.resolver.Resolve(WithModule(ctx, e.module), e.token)
		if err != nil {
			return fmt.Errorf("resolve service of module %s: %w", e.module.Name(), err)
		}
		svc, ok := value.(Service)
		if !ok || svc == nil {
			return fmt.Errorf("%w: %s resolved to %T", ErrNotAService, e.token, value)
		}

		s.mu.Lock()
		e.instance = svc
		s.mu.Unlock()

		if err := s.status.Register(ctx, registry.ServiceRegistration{
			Name:    e.token.String(),
			Module:  e.module.Name(),
			Service: svc,
		}); err != nil {
			return fmt.Errorf("record service %s: %w", e.token, err)
		}
		s.tel.log().Debug("Service resolved", "service", e.token.String(), "module", e.module.Name())
	}
	return nil
}

// groups splits the entries accepted by keep into module runs, ordered by
// each module's first registration.
func (s *ServiceManager) groups(keep func(*serviceEntry) bool) []*serviceGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*serviceGroup
	index := make(map[Module]*serviceGroup)
	for _, e := range s.entries {
		if !keep(e) {
			continue
		}
		g, ok := index[e.module]
		if !ok {
			g = &serviceGroup{module: e.module}
			index[e.module] = g
			out = append(out, g)
		}
		g.entries = append(g.entries, e)
	}
	return out
}

// StartAll starts every registered service. For each module it runs
// BeforeModuleBoot on the module's services, then Start, then OnModuleBoot.
// The first failure stops the sequence; services started before it stay
// started so the caller can unwind them with StopAll.
func (s *ServiceManager) StartAll(ctx context.Context) error {
	for _, g := range s.groups(func(*serviceEntry) bool { return true }) {
		mctx := WithModule(ctx, g.module)

		for _, e := range g.entries {
			if e.instance == nil {
				return &ServiceStartError{Module: g.module.Name(), Service: e.token.String(), Hook: HookStart, Err: ErrServiceNotResolved}
			}
			if hook, ok := e.instance.(PreBootHook); ok {
				if err := hook.BeforeModuleBoot(mctx); err != nil {
					return s.startFailed(ctx, g.module, e, HookBeforeModuleBoot, err)
				}
			}
		}

		for _, e := range g.entries {
			if e.started {
				continue
			}
			if err := s.start(mctx, g.module, e); err != nil {
				return s.startFailed(ctx, g.module, e, HookStart, err)
			}
		}

		for _, e := range g.entries {
			if hook, ok := e.instance.(BootHook); ok {
				if err := hook.OnModuleBoot(mctx); err != nil {
					return s.startFailed(ctx, g.module, e, HookOnModuleBoot, err)
				}
			}
		}
	}
	return nil
}

func (s *ServiceManager) start(ctx context.Context, module Module, e *serviceEntry) error {
	name := e.token.String()
	_ = s.status.SetStatus(name, registry.ServiceStatusStarting, nil)

	spanCtx, span := s.tel.startSpan(ctx, "modkit.service.start",
		otelattr.String("module", module.Name()), otelattr.String("service", name))
	began := time.Now()
	err := e.instance.Start(spanCtx)
	endSpan(span, err)
	s.tel.meter().ObserveServiceStart(module.Name(), name, time.Since(began), err)

	if err != nil {
		return err
	}

	s.mu.Lock()
	e.started = true
	s.mu.Unlock()

	_ = s.status.SetStatus(name, registry.ServiceStatusActive, nil)
	s.tel.log().Info("Service started", "module", module.Name(), "service", name)
	s.tel.event(ctx, EventTypeServiceStarted, map[string]any{"module": module.Name(), "service": name})
	return nil
}

func (s *ServiceManager) startFailed(ctx context.Context, module Module, e *serviceEntry, hook string, err error) error {
	name := e.token.String()
	_ = s.status.SetStatus(name, registry.ServiceStatusError, err)
	s.tel.log().Error("Service failed to start", "module", module.Name(), "service", name, "hook", hook, "error", err)
	s.tel.event(ctx, EventTypeServiceFailed, map[string]any{
		"module": module.Name(), "service": name, "hook": hook, "error": err.Error(),
	})
	return &ServiceStartError{Module: module.Name(), Service: name, Hook: hook, Err: err}
}

// StopAll stops every started service in registration order. For each
// module it runs BeforeModuleShutdown, then Stop, then OnModuleShutdown on
// the module's started services. The first failure stops the sequence.
func (s *ServiceManager) StopAll(ctx context.Context) error {
	for _, g := range s.groups(func(e *serviceEntry) bool { return e.started }) {
		mctx := WithModule(ctx, g.module)

		for _, e := range g.entries {
			if hook, ok := e.instance.(PreShutdownHook); ok {
				if err := hook.BeforeModuleShutdown(mctx); err != nil {
					return s.stopFailed(ctx, g.module, e, HookBeforeModuleShutdown, err)
				}
			}
		}

		for _, e := range g.entries {
			if err := s.stop(mctx, g.module, e); err != nil {
				return s.stopFailed(ctx, g.module, e, HookStop, err)
			}
		}

		for _, e := range g.entries {
			if hook, ok := e.instance.(ShutdownHook); ok {
				if err := hook.OnModuleShutdown(mctx); err != nil {
					return s.stopFailed(ctx, g.module, e, HookOnModuleShutdown, err)
				}
			}
		}
	}
	return nil
}

func (s *ServiceManager) stop(ctx context.Context, module Module, e *serviceEntry) error {
	name := e.token.String()
	_ = s.status.SetStatus(name, registry.ServiceStatusStopping, nil)

	spanCtx, span := s.tel.startSpan(ctx, "modkit.service.stop",
		otelattr.String("module", module.Name()), otelattr.String("service", name))
	err := e.instance.Stop(spanCtx)
	endSpan(span, err)
	s.tel.meter().ObserveServiceStop(module.Name(), name, err)

	if err != nil {
		return err
	}

	s.mu.Lock()
	e.started = false
	s.mu.Unlock()

	_ = s.status.SetStatus(name, registry.ServiceStatusInactive, nil)
	s.tel.log().Info("Service stopped", "module", module.Name(), "service", name)
	s.tel.event(ctx, EventTypeServiceStopped, map[string]any{"module": module.Name(), "service": name})
	return nil
}

func (s *ServiceManager) stopFailed(ctx context.Context, module Module, e *serviceEntry, hook string, err error) error {
	name := e.token.String()
	_ = s.status.SetStatus(name, registry.ServiceStatusError, err)
	s.tel.log().Error("Service failed to stop", "module", module.Name(), "service", name, "hook", hook, "error", err)
	s.tel.event(ctx, EventTypeServiceFailed, map[string]any{
		"module": module.Name(), "service": name, "hook": hook, "error": err.Error(),
	})
	return &ServiceStopError{Module: module.Name(), Service: name, Hook: hook, Err: err}
}

// ParentModule returns the module that declared the service instance. It
// only knows instances assigned by ResolveAll; constructors and code running
// before resolution should use ModuleOf or ModuleFromContext.
func (s *ServiceManager) ParentModule(instance any) (Module, bool) {
	if instance == nil || !reflect.TypeOf(instance).Comparable() {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.instance != nil && reflect.TypeOf(e.instance) == reflect.TypeOf(instance) && any(e.instance) == instance {
			return e.module, true
		}
	}
	return nil, false
}

// ModuleOf returns the module that registered token. It answers as soon as
// the module is registered, before the service is resolved.
func (s *ServiceManager) ModuleOf(token container.Token) (Module, bool) {
	if token == nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byToken[token]
	if !ok {
		return nil, false
	}
	return e.module, true
}

// Registrations returns a snapshot of every registration in order.
func (s *ServiceManager) Registrations() []ServiceRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ServiceRegistration, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.snapshot()
	}
	return out
}

// Status returns the registry entry of the service registered under token.
func (s *ServiceManager) Status(token container.Token) (registry.ServiceEntry, bool) {
	if token == nil {
		return registry.ServiceEntry{}, false
	}
	return s.status.Get(token.String())
}

// Registry returns the status registry the manager keeps up to date.
func (s *ServiceManager) Registry() *registry.Registry {
	return s.status
}
