package configwatcher

import (
	"context"
	"sync"
	"time"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/config"
	"github.com/GoCodeAlone/modkit/health"
)

// EventSource is the CloudEvents source of config change events.
const EventSource = "modkit/configwatcher"

// Config defines the configuration for the watcher.
type Config struct {
	// Paths lists the files to watch.
	Paths []string `json:"paths" yaml:"paths" toml:"paths" env:"PATHS"`

	// Debounce coalesces bursts of writes into one change.
	Debounce time.Duration `json:"debounce" yaml:"debounce" toml:"debounce" env:"DEBOUNCE"`
}

// Watcher publishes a config changed event whenever a watched file changes.
// Controllers receive it through modkit.OnEvent{Type: modkit.EventTypeConfigChanged}.
type Watcher struct {
	App    *modkit.Application `inject:""`
	Config *Config             `inject:"optional"`

	mu        sync.Mutex
	reloader  *config.Reloader
	callbacks []config.ReloadCallback
	changes   int
	last      *config.Change
}

// OnChange adds a callback run for every change after the event has been
// published.
func (w *Watcher) OnChange(fn config.ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching. Without paths the watcher stays idle.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reloader != nil && w.reloader.IsWatching() {
		return nil
	}

	var cfg Config
	if w.Config != nil {
		cfg = *w.Config
	}
	if len(cfg.Paths) == 0 {
		w.App.Logger().Debug("No configuration files to watch")
		return nil
	}

	w.reloader = config.NewReloader(cfg.Paths, cfg.Debounce, w.App.Logger())
	return w.reloader.StartWatch(context.WithoutCancel(ctx), w.changed)
}

func (w *Watcher) changed(ctx context.Context, change config.Change) error {
	w.mu.Lock()
	w.changes++
	w.last = &change
	callbacks := append([]config.ReloadCallback(nil), w.callbacks...)
	w.mu.Unlock()

	event := modkit.NewCloudEvent(modkit.EventTypeConfigChanged, EventSource, change, nil)
	if err := w.App.NotifyObservers(ctx, event); err != nil {
		return err
	}
	for _, fn := range callbacks {
		if err := fn(ctx, change); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	reloader := w.reloader
	w.mu.Unlock()

	if reloader == nil {
		return nil
	}
	return reloader.StopWatch(ctx)
}

// Paths returns the files being watched.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reloader == nil {
		return nil
	}
	return w.reloader.Paths()
}

// Name implements health.Checker.
func (w *Watcher) Name() string { return "configwatcher" }

// Check implements health.Checker.
func (w *Watcher) Check(ctx context.Context) (*health.CheckResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reloader == nil {
		return &health.CheckResult{Status: health.StatusHealthy, Message: "idle"}, nil
	}
	if !w.reloader.IsWatching() {
		return &health.CheckResult{Status: health.StatusWarning, Message: "not watching"}, nil
	}

	result := &health.CheckResult{
		Status:  health.StatusHealthy,
		Message: "watching",
		Details: map[string]any{"paths": w.reloader.Paths(), "changes": w.changes},
	}
	if w.last != nil {
		result.Details["lastChange"] = w.last.Timestamp
	}
	return result, nil
}
