package modkit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// EventManager delivers CloudEvents to controller methods carrying OnEvent
// attributes.
type EventManager struct {
	controllers *ControllerManager
	tel         *telemetry

	mu       sync.RWMutex
	handlers []*MethodAttributeRegistration
	ready    bool
}

// NewEventManager creates an EventManager reading handlers from controllers.
func NewEventManager(controllers *ControllerManager, logger Logger) *EventManager {
	return &EventManager{controllers: controllers, tel: newTelemetry(logger)}
}

// Init builds the handler table from the controller registrations. Calling
// it again rebuilds the table.
func (m *EventManager) Init(ctx context.Context) error {
	handlers := RegistrationsOf[OnEvent](m.controllers)

	m.mu.Lock()
	m.handlers = handlers
	m.ready = true
	m.mu.Unlock()

	m.tel.log().Debug("Event handlers registered", "count", len(handlers))
	return nil
}

// Ready reports whether Init has run.
func (m *EventManager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Emit invokes every handler matching the event type, one after another in
// registration order. The event is passed to the handler as an explicit
// argument. Handler errors do not stop delivery; they are joined and
// returned.
func (m *EventManager) Emit(ctx context.Context, event cloudevents.Event) error {
	m.mu.RLock()
	if !m.ready {
		m.mu.RUnlock()
		return ErrEventManagerNotReady
	}
	handlers := m.handlers
	m.mu.RUnlock()

	var errs []error
	for _, reg := range handlers {
		if !handles(reg, event.Type()) {
			continue
		}
		if _, err := reg.Invoke(ctx, event); err != nil {
			m.tel.log().Error("Event handler failed", "event", event.Type(), "method", reg.MethodName, "error", err)
			errs = append(errs, fmt.Errorf("%T.%s: %w", reg.Target, reg.MethodName, err))
		}
	}
	return errors.Join(errs...)
}

// Handlers returns the registrations that would receive events of eventType.
func (m *EventManager) Handlers(eventType string) []*MethodAttributeRegistration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MethodAttributeRegistration
	for _, reg := range m.handlers {
		if handles(reg, eventType) {
			out = append(out, reg)
		}
	}
	return out
}

// handles reports whether any OnEvent attribute of reg matches eventType.
// A method is invoked once per event however many attributes match.
func handles(reg *MethodAttributeRegistration, eventType string) bool {
	for _, attr := range AttributesOf[OnEvent](reg) {
		if attr.Matches(eventType) {
			return true
		}
	}
	return false
}
