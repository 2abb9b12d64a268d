package modkit

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// RequestManager routes named requests to controller methods carrying a
// HandlesRequest attribute. It has no transport of its own.
type RequestManager struct {
	controllers *ControllerManager
	tel         *telemetry

	mu       sync.RWMutex
	handlers map[string]*MethodAttributeRegistration
}

// NewRequestManager creates a RequestManager reading handlers from
// controllers.
func NewRequestManager(controllers *ControllerManager, logger Logger) *RequestManager {
	return &RequestManager{
		controllers: controllers,
		tel:         newTelemetry(logger),
		handlers:    make(map[string]*MethodAttributeRegistration),
	}
}

// Init builds the request table. Two methods handling the same request name
// fail with ErrDuplicateRequestHandler.
func (m *RequestManager) Init(ctx context.Context) error {
	handlers := make(map[string]*MethodAttributeRegistration)
	for _, reg := range RegistrationsOf[HandlesRequest](m.controllers) {
		for _, attr := range AttributesOf[HandlesRequest](reg) {
			if existing, dup := handlers[attr.Name]; dup {
				return fmt.Errorf("%w: %q handled by %T.%s and %T.%s", ErrDuplicateRequestHandler,
					attr.Name, existing.Target, existing.MethodName, reg.Target, reg.MethodName)
			}
			handlers[attr.Name] = reg
		}
	}

	m.mu.Lock()
	m.handlers = handlers
	m.mu.Unlock()

	m.tel.log().Debug("Request handlers registered", "count", len(handlers))
	return nil
}

// Dispatch invokes the handler of the named request with args. Parameters
// not covered by args are resolved by the container.
func (m *RequestManager) Dispatch(ctx context.Context, name string, args ...any) (any, error) {
	m.mu.RLock()
	reg, ok := m.handlers[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRequestHandlerNotFound, name)
	}
	return reg.Invoke(ctx, args...)
}

// Names returns the registered request names, sorted.
func (m *RequestManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
