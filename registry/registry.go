// Package registry tracks the services of a running application and the
// status of each one.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

var (
	ErrServiceNotFound              = errors.New("service not found")
	ErrDuplicateService             = errors.New("service already registered")
	ErrInvalidRegistration          = errors.New("invalid service registration")
	ErrNoServicesFoundForInterface  = errors.New("no services found implementing interface")
	ErrAmbiguousInterfaceResolution = errors.New("ambiguous interface resolution: multiple services implement interface")
)

// ServiceStatus represents the current status of a service
type ServiceStatus string

const (
	ServiceStatusRegistered ServiceStatus = "registered"
	ServiceStatusStarting   ServiceStatus = "starting"
	ServiceStatusActive     ServiceStatus = "active"
	ServiceStatusStopping   ServiceStatus = "stopping"
	ServiceStatusInactive   ServiceStatus = "inactive"
	ServiceStatusError      ServiceStatus = "error"
)

// ServiceRegistration describes a service to add to the registry.
type ServiceRegistration struct {
	Name    string `json:"name"`
	Module  string `json:"module"`
	Service any    `json:"-"`

	RegisteredAt time.Time `json:"registered_at"`
}

// ServiceEntry is a snapshot of a registered service.
type ServiceEntry struct {
	Registration ServiceRegistration `json:"registration"`
	Status       ServiceStatus       `json:"status"`
	LastError    string              `json:"last_error,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Registry stores service entries in registration order.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*ServiceEntry
	order    []string
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]*ServiceEntry),
		now:      time.Now,
	}
}

// Register adds a service with status registered.
func (r *Registry) Register(ctx context.Context, registration ServiceRegistration) error {
	if registration.Name == "" || registration.Service == nil {
		return fmt.Errorf("%w: name and service are required", ErrInvalidRegistration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[registration.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, registration.Name)
	}

	now := r.now()
	if registration.RegisteredAt.IsZero() {
		registration.RegisteredAt = now
	}

	r.services[registration.Name] = &ServiceEntry{
		Registration: registration,
		Status:       ServiceStatusRegistered,
		UpdatedAt:    now,
	}
	r.order = append(r.order, registration.Name)
	return nil
}

// Unregister removes a service from the registry
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; !exists {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	delete(r.services, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetStatus updates the status of a service. A non-nil err is recorded as the
// last error; a nil err clears it.
func (r *Registry) SetStatus(name string, status ServiceStatus, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.services[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	entry.Status = status
	entry.LastError = ""
	if err != nil {
		entry.LastError = err.Error()
	}
	entry.UpdatedAt = r.now()
	return nil
}

// Get returns a snapshot of the named entry.
func (r *Registry) Get(name string) (ServiceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.services[name]
	if !exists {
		return ServiceEntry{}, false
	}
	return *entry, true
}

// List returns snapshots of all entries in registration order.
func (r *Registry) List() []ServiceEntry {
	return r.filter(func(*ServiceEntry) bool { return true })
}

// ListByModule returns the entries registered by module.
func (r *Registry) ListByModule(module string) []ServiceEntry {
	return r.filter(func(e *ServiceEntry) bool { return e.Registration.Module == module })
}

// ListByStatus returns the entries currently in status.
func (r *Registry) ListByStatus(status ServiceStatus) []ServiceEntry {
	return r.filter(func(e *ServiceEntry) bool { return e.Status == status })
}

func (r *Registry) filter(keep func(*ServiceEntry) bool) []ServiceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServiceEntry, 0, len(r.order))
	for _, name := range r.order {
		if entry := r.services[name]; keep(entry) {
			out = append(out, *entry)
		}
	}
	return out
}

// ResolveByName resolves a service by its registered name
func (r *Registry) ResolveByName(ctx context.Context, name string) (any, error) {
	entry, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return entry.Registration.Service, nil
}

// ResolveByInterface returns the single service implementing interfaceType.
func (r *Registry) ResolveByInterface(ctx context.Context, interfaceType reflect.Type) (any, error) {
	matches, err := r.ResolveAllByInterface(ctx, interfaceType)
	if err != nil {
		return nil, err
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: %s (%d candidates)", ErrAmbiguousInterfaceResolution, interfaceType, len(matches))
	}
	return matches[0], nil
}

// ResolveAllByInterface returns every service assignable to interfaceType,
// in registration order.
func (r *Registry) ResolveAllByInterface(ctx context.Context, interfaceType reflect.Type) ([]any, error) {
	if interfaceType == nil {
		return nil, fmt.Errorf("%w: nil type", ErrNoServicesFoundForInterface)
	}

	var out []any
	for _, entry := range r.List() {
		if reflect.TypeOf(entry.Registration.Service).AssignableTo(interfaceType) {
			out = append(out, entry.Registration.Service)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoServicesFoundForInterface, interfaceType)
	}
	return out, nil
}
