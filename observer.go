package modkit

import (
	"context"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of
// application lifecycle events. Events use the CloudEvents specification.
type Observer interface {
	// OnEvent is called synchronously on the goroutine running the lifecycle
	// step. Observers should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for the events emitted by the framework.
const (
	// Application lifecycle events
	EventTypeApplicationStarting = "com.modkit.application.starting"
	EventTypeApplicationStarted  = "com.modkit.application.started"
	EventTypeApplicationStopping = "com.modkit.application.stopping"
	EventTypeApplicationStopped  = "com.modkit.application.stopped"
	EventTypeApplicationFailed   = "com.modkit.application.failed"

	// Module lifecycle events
	EventTypeModuleBooted   = "com.modkit.module.booted"
	EventTypeModuleShutdown = "com.modkit.module.shutdown"

	// Service lifecycle events
	EventTypeServiceStarted = "com.modkit.service.started"
	EventTypeServiceStopped = "com.modkit.service.stopped"
	EventTypeServiceFailed  = "com.modkit.service.failed"

	// Configuration events
	EventTypeConfigChanged = "com.modkit.config.changed"
)

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that calls handler for every
// event it receives.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent calls the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID returns the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// observers keeps registrations in registration order and delivers events
// to them one at a time.
type observers struct {
	mu     sync.RWMutex
	list   []*observerRegistration
	logger Logger
}

func (o *observers) register(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	if observer.ObserverID() == "" {
		return ErrObserverIDRequired
	}

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	reg := &observerRegistration{observer: observer, eventTypes: types, registeredAt: time.Now()}

	o.mu.Lock()
	defer o.mu.Unlock()

	// Re-registering an ID replaces the filter but keeps the position.
	for i, existing := range o.list {
		if existing.observer.ObserverID() == observer.ObserverID() {
			o.list[i] = reg
			return nil
		}
	}
	o.list = append(o.list, reg)
	o.log().Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

func (o *observers) unregister(observer Observer) {
	if observer == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.list = slices.DeleteFunc(o.list, func(r *observerRegistration) bool {
		return r.observer.ObserverID() == observer.ObserverID()
	})
}

// notify delivers event to every interested observer in registration order.
// Observer errors and panics are logged and do not stop delivery.
func (o *observers) notify(ctx context.Context, event cloudevents.Event) error {
	if err := ValidateCloudEvent(event); err != nil {
		o.log().Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	o.mu.RLock()
	targets := slices.Clone(o.list)
	o.mu.RUnlock()

	for _, reg := range targets {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		o.deliver(ctx, reg.observer, event)
	}
	return nil
}

func (o *observers) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.log().Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()

	if err := observer.OnEvent(ctx, event); err != nil {
		o.log().Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

func (o *observers) info() []ObserverInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]ObserverInfo, 0, len(o.list))
	for _, reg := range o.list {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		slices.Sort(types)
		out = append(out, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return out
}

func (o *observers) log() Logger {
	return loggerOrNop(o.logger)
}
