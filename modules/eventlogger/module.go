// Package eventlogger writes the CloudEvents published by an application to
// console and file outputs.
//
// Import the module and every event published through
// Application.NotifyObservers while the application runs is logged:
//
//	app, err := modkit.NewApplication(
//		modkit.WithImports(container.TypeOf[*eventlogger.Module]()),
//	)
//
// Events are buffered and written by a single goroutine. When the buffer is
// full the oldest event is dropped.
//
// Text format:
//
//	2024-01-15T10:30:15Z INFORMATION [com.modkit.service.started] modkit/app map[module:billing]
//
// JSON format:
//
//	{"timestamp":"2024-01-15T10:30:15Z","level":"information","type":"com.modkit.service.started",...}
package eventlogger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/container"
	"github.com/GoCodeAlone/modkit/health"
	"github.com/GoCodeAlone/modkit/logging"
)

// ModuleName is the name of the event logger module.
const ModuleName = "eventlogger"

// Module provides the EventLogger service.
type Module struct{}

// Name implements modkit.Module.
func (*Module) Name() string { return ModuleName }

// Services implements modkit.ServiceAware.
func (*Module) Services() []container.Token {
	return []container.Token{container.TypeOf[*EventLogger]()}
}

// EventLogger observes the application and logs its events.
type EventLogger struct {
	App    *modkit.Application `inject:""`
	Config *Config             `inject:"optional"`

	mu      sync.Mutex
	cfg     Config
	level   logging.Level
	outputs []Output
	custom  bool
	events  chan cloudevents.Event
	stop    chan struct{}
	done    chan struct{}
	started bool
	logged  int
	dropped int
}

// SetOutputs replaces the outputs built from the configuration. It must be
// called before Start.
func (l *EventLogger) SetOutputs(outputs ...Output) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = outputs
	l.custom = true
}

func (l *EventLogger) logger() modkit.Logger {
	if l.App != nil {
		return l.App.Logger()
	}
	return logging.NewNop()
}

// Start opens the outputs, starts the writer and registers the observer.
func (l *EventLogger) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}

	if l.Config != nil {
		l.cfg = *l.Config
		l.cfg.Outputs = slices.Clone(l.Config.Outputs)
	}
	l.cfg.SetDefaults()
	if err := l.cfg.Validate(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("eventlogger config: %w", err)
	}
	if l.cfg.Disabled {
		l.mu.Unlock()
		l.logger().Info("Event logger is disabled")
		return nil
	}
	l.level, _ = logging.ParseLevel(l.cfg.Level)

	if l.outputs == nil {
		for i, oc := range l.cfg.Outputs {
			out, err := NewOutput(oc)
			if err != nil {
				l.mu.Unlock()
				return &OutputError{Index: i, Err: err}
			}
			l.outputs = append(l.outputs, out)
		}
	}
	for i, out := range l.outputs {
		if err := out.Start(ctx); err != nil {
			for _, started := range l.outputs[:i] {
				_ = started.Stop(ctx)
			}
			l.mu.Unlock()
			return &OutputError{Index: i, Err: err}
		}
	}

	l.events = make(chan cloudevents.Event, l.cfg.BufferSize)
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.started = true
	go l.process(l.events, l.stop, l.done)
	l.mu.Unlock()

	if err := l.App.RegisterObserver(l, l.cfg.EventTypes...); err != nil {
		return err
	}
	l.emit(ctx, EventTypeLoggerStarted, map[string]any{"outputs": len(l.outputs), "bufferSize": l.cfg.BufferSize})
	l.logger().Info("Event logger started", "outputs", len(l.outputs))
	return nil
}

// Stop unregisters the observer, drains the buffer and closes the outputs.
func (l *EventLogger) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	l.emit(ctx, EventTypeLoggerStopped, map[string]any{"logged": l.Logged()})
	l.App.UnregisterObserver(l)

	l.mu.Lock()
	l.started = false
	close(l.stop)
	done := l.done
	drain := l.cfg.DrainTimeout
	l.mu.Unlock()

	var timeout <-chan time.Time
	if drain > 0 {
		timer := time.NewTimer(drain)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-done:
	case <-timeout:
		l.logger().Warn("Event logger drain timeout reached")
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	outputs := l.outputs
	if !l.custom {
		l.outputs = nil
	}
	l.mu.Unlock()

	var errs []error
	for _, out := range outputs {
		if err := out.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("stop outputs: %w", err)
	}
	l.logger().Info("Event logger stopped")
	return nil
}

// ObserverID implements modkit.Observer.
func (l *EventLogger) ObserverID() string { return ModuleName }

// OnEvent implements modkit.Observer. It only enqueues the event.
func (l *EventLogger) OnEvent(ctx context.Context, event cloudevents.Event) error {
	if isOwnEvent(event) {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return ErrLoggerNotStarted
	}

	select {
	case l.events <- event:
		return nil
	default:
	}

	// Full: drop the oldest and retry once.
	select {
	case old := <-l.events:
		l.dropped++
		l.logger().Debug("Event buffer full, dropped oldest event", "dropped", old.Type(), "incoming", event.Type())
	default:
	}
	select {
	case l.events <- event:
		return nil
	default:
		l.dropped++
		return ErrEventBufferFull
	}
}

func (l *EventLogger) process(events chan cloudevents.Event, stop, done chan struct{}) {
	defer close(done)

	l.mu.Lock()
	interval := l.cfg.FlushInterval
	l.mu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			l.write(event)
		case <-ticker.C:
			l.flush()
		case <-stop:
			for {
				select {
				case event := <-events:
					l.write(event)
				default:
					l.flush()
					return
				}
			}
		}
	}
}

func (l *EventLogger) write(event cloudevents.Event) {
	entry := newEntry(event)

	l.mu.Lock()
	if !l.level.Enabled(entry.Level) {
		l.mu.Unlock()
		return
	}
	outputs := append([]Output(nil), l.outputs...)
	l.logged++
	l.mu.Unlock()

	for i, out := range outputs {
		if err := out.Write(entry); err != nil {
			l.logger().Error("Failed to write event", "output", i, "event", event.Type(), "error", err)
			l.emit(context.Background(), EventTypeOutputError, map[string]any{"output": i, "eventType": event.Type(), "error": err.Error()})
		}
	}
}

func (l *EventLogger) flush() {
	l.mu.Lock()
	outputs := append([]Output(nil), l.outputs...)
	l.mu.Unlock()
	for _, out := range outputs {
		if err := out.Flush(); err != nil {
			l.logger().Error("Failed to flush event output", "error", err)
		}
	}
}

func (l *EventLogger) emit(ctx context.Context, eventType string, data map[string]any) {
	if l.App == nil {
		return
	}
	if err := l.App.NotifyObservers(ctx, modkit.NewCloudEvent(eventType, EventSource, data, nil)); err != nil {
		l.logger().Debug("Failed to publish event logger event", "event", eventType, "error", err)
	}
}

// Logged returns the number of entries written so far.
func (l *EventLogger) Logged() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logged
}

// Dropped returns the number of events dropped because the buffer was full.
func (l *EventLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Name implements health.Checker.
func (l *EventLogger) Name() string { return ModuleName }

// Check implements health.Checker. Dropped events degrade the status to
// warning.
func (l *EventLogger) Check(ctx context.Context) (*health.CheckResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := &health.CheckResult{
		Status:  health.StatusHealthy,
		Details: map[string]any{"logged": l.logged, "dropped": l.dropped},
	}
	switch {
	case l.cfg.Disabled:
		result.Message = "disabled"
	case !l.started:
		result.Status = health.StatusWarning
		result.Message = "not started"
	case l.dropped > 0:
		result.Status = health.StatusWarning
		result.Message = fmt.Sprintf("%d events dropped", l.dropped)
	}
	return result, nil
}

func isOwnEvent(event cloudevents.Event) bool {
	return event.Source() == EventSource || strings.HasPrefix(event.Type(), "com.modkit.eventlogger.")
}

func newEntry(event cloudevents.Event) *Entry {
	entry := &Entry{
		Timestamp: event.Time(),
		Level:     eventLevel(event.Type()),
		Type:      event.Type(),
		Source:    event.Source(),
		ID:        event.ID(),
	}
	if event.Data() != nil {
		var data any
		if err := event.DataAs(&data); err == nil {
			entry.Data = data
		} else {
			entry.Data = string(event.Data())
		}
	}
	if ext := event.Extensions(); len(ext) > 0 {
		entry.Metadata = make(map[string]any, len(ext))
		for k, v := range ext {
			entry.Metadata[k] = v
		}
	}
	return entry
}

func eventLevel(eventType string) logging.Level {
	switch eventType {
	case modkit.EventTypeApplicationFailed, modkit.EventTypeServiceFailed:
		return logging.LevelError
	case modkit.EventTypeConfigChanged:
		return logging.LevelDebug
	default:
		return logging.LevelInformation
	}
}
