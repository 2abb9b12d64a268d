package modkit

import (
	"context"
	"fmt"
	"os"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	otelattr "go.opentelemetry.io/otel/attribute"

	"github.com/GoCodeAlone/modkit/attribute"
	"github.com/GoCodeAlone/modkit/container"
	"github.com/GoCodeAlone/modkit/feeders"
	"github.com/GoCodeAlone/modkit/health"
	"github.com/GoCodeAlone/modkit/lifecycle"
	"github.com/GoCodeAlone/modkit/logging"
	"github.com/GoCodeAlone/modkit/registry"
)

// Application is the root of a module tree and drives its lifecycle.
//
// The application is itself the root module: services and controllers given
// with WithServices and WithControllers belong to it, and hooks given with
// WithBootHook and WithShutdownHook run as its OnModuleBoot and
// OnModuleShutdown, after every imported module.
//
// Start bootstraps the tree once (import, service registration, controller
// registration), then starts every service and runs the module boot hooks.
// Stop reverses the module hooks and stops the services. A failure the
// application cannot recover from aborts it; see AbortPolicy.
type Application struct {
	cfg    Config
	logger Logger
	tel    *telemetry
	exit   func(code int)

	container  *container.Container
	attributes AttributeRegistry

	imports          []container.Token
	serviceTokens    []container.Token
	controllerTokens []container.Token
	bootHooks        []func(ctx context.Context) error
	shutdownHooks    []func(ctx context.Context) error

	observers observers
	machine   *lifecycle.Machine
	health    *health.Aggregator

	modules     *ModuleManager
	services    *ServiceManager
	controllers *ControllerManager
	events      *EventManager
	requests    *RequestManager

	// opMu serializes Start, Stop and Bootstrap.
	opMu         sync.Mutex
	bootstrapped bool

	// stateMu guards the run handle, so a concurrent Start can see a run in
	// progress without waiting for opMu.
	stateMu  sync.Mutex
	done     chan struct{}
	aborted  bool
	abortErr error

	// busy is set while Start or Stop runs. A Stop arriving meanwhile, from
	// an observer, a hook or another goroutine, sets stopPending and is
	// carried out when the running operation returns.
	busy        bool
	stopPending bool
	releasing   bool
}

// NewApplication creates an application. Options are applied in order.
func NewApplication(opts ...Option) (*Application, error) {
	app := &Application{
		tel:     &telemetry{},
		exit:    os.Exit,
		machine: lifecycle.NewMachine(),
		health:  health.NewAggregator(nil),
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	app.cfg.SetDefaults()
	if err := app.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}

	if app.cfg.EnvFile != "" {
		if err := feeders.LoadDotEnv(app.cfg.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", app.cfg.EnvFile, err)
		}
	}

	if app.logger == nil {
		logger, err := logging.NewZap(app.logLevel())
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		app.logger = logger
	}
	app.tel.logger = app.logger
	app.tel.emit = app.emit
	app.observers.logger = app.logger

	if app.container == nil {
		app.container = container.New()
	}
	if app.attributes == nil {
		app.attributes = attribute.NewRegistry()
	}

	app.modules = NewModuleManager(app.container, app.logger)
	app.services = NewServiceManager(app.container, app.logger)
	app.controllers = NewControllerManager(app.container, app.attributes, app.logger)
	app.events = NewEventManager(app.controllers, app.logger)
	app.requests = NewRequestManager(app.controllers, app.logger)
	app.modules.tel = app.tel
	app.services.tel = app.tel
	app.controllers.tel = app.tel
	app.events.tel = app.tel
	app.requests.tel = app.tel

	if err := app.provideSelf(); err != nil {
		return nil, err
	}

	app.machine.OnTransition(func(t lifecycle.Transition) {
		app.tel.meter().SetState(t.To)
		app.logger.Debug("Application state changed", "from", t.From, "to", t.To)
	})
	app.tel.meter().SetState(app.machine.State())

	return app, nil
}

// provideSelf makes the application and its managers resolvable.
func (app *Application) provideSelf() error {
	values := []any{app, app.modules, app.services, app.controllers, app.events, app.requests, app.health, app.services.Registry()}
	for _, v := range values {
		if err := app.container.ProvideValue(v); err != nil {
			return fmt.Errorf("provide %T: %w", v, err)
		}
	}
	if !app.container.Has(container.TypeOf[Logger]()) {
		if err := container.Bind[Logger](app.container, app.logger); err != nil {
			return fmt.Errorf("provide logger: %w", err)
		}
	}
	return nil
}

func (app *Application) logLevel() logging.Level {
	if app.cfg.LogLevel != "" {
		if level, err := logging.ParseLevel(app.cfg.LogLevel); err == nil {
			return level
		}
	}
	return app.DefaultLogLevel()
}

// Name returns the application name. It implements Module.
func (app *Application) Name() string {
	return app.cfg.Name
}

// Imports implements ImportAware.
func (app *Application) Imports() []container.Token {
	return app.imports
}

// Services implements ServiceAware.
func (app *Application) Services() []container.Token {
	return app.serviceTokens
}

// Controllers implements ControllerAware.
func (app *Application) Controllers() []container.Token {
	return app.controllerTokens
}

// OnModuleBoot runs the boot hooks given with WithBootHook.
func (app *Application) OnModuleBoot(ctx context.Context) error {
	for _, fn := range app.bootHooks {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// OnModuleShutdown runs the shutdown hooks given with WithShutdownHook.
func (app *Application) OnModuleShutdown(ctx context.Context) error {
	for _, fn := range app.shutdownHooks {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the effective configuration.
func (app *Application) Config() Config { return app.cfg }

// Logger returns the application logger.
func (app *Application) Logger() Logger { return app.logger }

// Container returns the dependency container.
func (app *Application) Container() *container.Container { return app.container }

// ModuleManager returns the module manager.
func (app *Application) ModuleManager() *ModuleManager { return app.modules }

// ServiceManager returns the service manager.
func (app *Application) ServiceManager() *ServiceManager { return app.services }

// ControllerManager returns the controller manager.
func (app *Application) ControllerManager() *ControllerManager { return app.controllers }

// EventManager returns the event manager.
func (app *Application) EventManager() *EventManager { return app.events }

// RequestManager returns the request manager.
func (app *Application) RequestManager() *RequestManager { return app.requests }

// Health returns the aggregator holding one check per running service.
func (app *Application) Health() *health.Aggregator { return app.health }

// Status returns the current lifecycle state.
func (app *Application) Status() lifecycle.State { return app.machine.State() }

// Transitions returns every state transition so far.
func (app *Application) Transitions() []lifecycle.Transition { return app.machine.History() }

// Mode reads the mode variable. It is read on every call.
func (app *Application) Mode() Mode {
	return ParseMode(os.Getenv(app.cfg.ModeVariable))
}

// DefaultLogLevel is Information in production and Debug otherwise.
func (app *Application) DefaultLogLevel() logging.Level {
	if app.Mode() == ModeProduction {
		return logging.LevelInformation
	}
	return logging.LevelDebug
}

// RegisterObserver adds an observer. Observers are notified synchronously
// in registration order. With no eventTypes the observer receives every
// event.
func (app *Application) RegisterObserver(observer Observer, eventTypes ...string) error {
	return app.observers.register(observer, eventTypes...)
}

// UnregisterObserver removes an observer. Unknown observers are ignored.
func (app *Application) UnregisterObserver(observer Observer) {
	app.observers.unregister(observer)
}

// Observers describes the registered observers.
func (app *Application) Observers() []ObserverInfo {
	return app.observers.info()
}

// NotifyObservers delivers event to the observers and, once the application
// has started, to OnEvent controller methods.
func (app *Application) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if err := app.observers.notify(ctx, event); err != nil {
		return err
	}
	if app.events.Ready() {
		if err := app.events.Emit(ctx, event); err != nil {
			app.logger.Warn("Event handlers failed", "event", event.Type(), "error", err)
		}
	}
	return nil
}

func (app *Application) emit(ctx context.Context, eventType string, data map[string]any) {
	event := NewCloudEvent(eventType, "modkit/"+app.Name(), data, map[string]any{ExtensionApplication: app.Name()})
	if err := app.NotifyObservers(ctx, event); err != nil {
		app.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}

// Bootstrap imports the module tree and registers services and controllers.
// It runs once per application; Start calls it. Called while Start or Stop
// runs it returns nil and leaves bootstrapping to that operation.
func (app *Application) Bootstrap(ctx context.Context) error {
	app.stateMu.Lock()
	busy := app.busy
	app.stateMu.Unlock()
	if busy {
		return nil
	}

	app.opMu.Lock()
	defer app.opMu.Unlock()
	return app.bootstrap(ctx)
}

func (app *Application) bootstrap(ctx context.Context) (err error) {
	if app.bootstrapped {
		return nil
	}

	ctx, span := app.tel.startSpan(ctx, "modkit.application.bootstrap", otelattr.String("application", app.Name()))
	defer func() { endSpan(span, err) }()

	if err := app.modules.Import(ctx, app); err != nil {
		return err
	}

	modules := app.modules.Modules()
	for _, m := range modules {
		app.services.RegisterFromModule(m)
	}
	if err := app.services.ResolveAll(ctx); err != nil {
		return err
	}

	for _, m := range modules {
		app.controllers.RegisterFromModule(m)
	}
	if err := app.controllers.ResolveAll(ctx); err != nil {
		return err
	}

	app.bootstrapped = true
	app.logger.Debug("Application bootstrapped",
		"modules", len(modules),
		"services", len(app.services.Registrations()),
		"controllers", len(app.controllers.Controllers()))
	return nil
}

// Start bootstraps the application if needed, starts every service and runs
// the module boot hooks. It returns once the application is running; use
// Wait or Done to block until it stops.
//
// Start is a no-op while the application is starting, running or stopping.
// When a step fails, the services already started are stopped, the modules
// already booted are shut down and the application aborts. If Stop was
// requested while starting, the application is stopped before Start returns.
func (app *Application) Start(ctx context.Context) error {
	app.stateMu.Lock()
	if app.aborted {
		app.stateMu.Unlock()
		return ErrApplicationAborted
	}
	if app.done != nil {
		app.stateMu.Unlock()
		app.logger.Debug("Start ignored, application already started")
		return nil
	}
	app.done = make(chan struct{})
	app.busy = true
	app.stateMu.Unlock()

	return app.runOperation(ctx, "modkit.application.start", app.start)
}

// runOperation runs op under opMu, then performs a Stop requested while op
// was running.
func (app *Application) runOperation(ctx context.Context, name string, op func(context.Context) error) error {
	app.opMu.Lock()
	opCtx, span := app.tel.startSpan(ctx, name, otelattr.String("application", app.Name()))
	err := op(opCtx)
	endSpan(span, err)
	app.opMu.Unlock()

	app.stateMu.Lock()
	app.busy = false
	if app.releasing && app.done != nil {
		close(app.done)
		app.done = nil
	}
	app.releasing = false
	stop := app.stopPending && app.done != nil
	app.stopPending = false
	app.stateMu.Unlock()

	if stop {
		app.logger.Debug("Running deferred stop", "after", name)
		if stopErr := app.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			app.logger.Error("Deferred stop failed", "error", stopErr)
		}
	}
	return err
}

func (app *Application) start(ctx context.Context) error {
	if err := app.machine.TransitionTo(lifecycle.StateStarting); err != nil {
		app.releaseHandle()
		return err
	}
	app.logger.Info("Starting application", "name", app.Name(), "mode", app.Mode())
	app.emit(ctx, EventTypeApplicationStarting, map[string]any{"name": app.Name()})

	if err := app.bootstrap(ctx); err != nil {
		return app.failStart(ctx, err, false)
	}
	if err := app.events.Init(ctx); err != nil {
		return app.failStart(ctx, err, false)
	}
	if err := app.requests.Init(ctx); err != nil {
		return app.failStart(ctx, err, false)
	}

	if err := app.services.StartAll(ctx); err != nil {
		return app.failStart(ctx, err, true)
	}
	if err := app.modules.StartModule(ctx, app, false); err != nil {
		return app.failStart(ctx, err, true)
	}
	if err := app.modules.StartModule(ctx, app, true); err != nil {
		return app.failStart(ctx, err, true)
	}

	if err := app.machine.TransitionTo(lifecycle.StateRunning); err != nil {
		return app.failStart(ctx, err, true)
	}
	app.registerHealthChecks(ctx)

	app.logger.Info("Application started", "name", app.Name())
	app.emit(ctx, EventTypeApplicationStarted, map[string]any{"name": app.Name()})
	return nil
}

// failStart unwinds a failed start: started services are stopped, then
// modules whose OnModuleBoot succeeded get OnModuleShutdown. Rollback errors
// are logged and dropped so the start error is the one reported.
func (app *Application) failStart(ctx context.Context, cause error, rollback bool) error {
	if rollback {
		if err := app.services.StopAll(ctx); err != nil {
			app.logger.Warn("Rollback after failed start did not complete", "error", err)
		}
		if err := app.modules.UnwindBooted(ctx); err != nil {
			app.logger.Warn("Module unwind after failed start did not complete", "error", err)
		}
	}
	return app.abort(ctx, cause)
}

// Stop stops every service and runs the module shutdown hooks. It is a
// no-op when the application is not running. A failure aborts the
// application.
//
// Stop called while Start or Stop runs, such as from an observer of a
// lifecycle event, does not wait: it returns nil and the stop is carried out
// when the running operation returns. Use Done or Wait to block until the
// application has stopped.
func (app *Application) Stop(ctx context.Context) error {
	app.stateMu.Lock()
	if app.done == nil {
		app.stateMu.Unlock()
		return nil
	}
	if app.busy {
		app.stopPending = true
		app.stateMu.Unlock()
		app.logger.Debug("Stop requested during a lifecycle operation, deferring")
		return nil
	}
	app.busy = true
	app.stateMu.Unlock()

	return app.runOperation(ctx, "modkit.application.stop", app.stop)
}

func (app *Application) stop(ctx context.Context) error {
	if err := app.machine.TransitionTo(lifecycle.StateStopping); err != nil {
		return err
	}
	app.logger.Info("Stopping application", "name", app.Name())
	app.emit(ctx, EventTypeApplicationStopping, map[string]any{"name": app.Name()})

	if err := app.bootstrap(ctx); err != nil {
		return app.abort(ctx, err)
	}
	if err := app.services.StopAll(ctx); err != nil {
		return app.abort(ctx, err)
	}
	if err := app.modules.StopModule(ctx, app, false); err != nil {
		return app.abort(ctx, err)
	}
	if err := app.modules.StopModule(ctx, app, true); err != nil {
		return app.abort(ctx, err)
	}
	app.modules.ClearLifecycleCache()
	app.health.Reset()

	if err := app.machine.TransitionTo(lifecycle.StateStopped); err != nil {
		return app.abort(ctx, err)
	}
	app.releaseHandle()

	app.logger.Info("Application stopped", "name", app.Name())
	app.emit(ctx, EventTypeApplicationStopped, map[string]any{"name": app.Name()})
	return nil
}

// abort is the fatal path. It records the failure, then either exits the
// process or returns an error wrapping ErrAborted, depending on the policy.
func (app *Application) abort(ctx context.Context, cause error) error {
	app.stateMu.Lock()
	app.aborted = true
	app.abortErr = cause
	app.stateMu.Unlock()

	if err := app.machine.TransitionTo(lifecycle.StateAborted); err != nil {
		app.logger.Debug("Abort outside a transition", "state", app.machine.State(), "error", err)
	}

	app.logger.Error("Aborting application due to a fatal error", "name", app.Name(), "error", cause)
	app.tel.meter().RecordAbort()
	app.emit(ctx, EventTypeApplicationFailed, map[string]any{"name": app.Name(), "error": cause.Error()})
	app.releaseHandle()

	err := fmt.Errorf("%w: %w", ErrAborted, cause)
	if app.cfg.AbortPolicy == AbortTerminate {
		app.exit(1)
	}
	return err
}

// releaseHandle marks the run handle to be resolved and cleared when the
// running operation returns.
func (app *Application) releaseHandle() {
	app.stateMu.Lock()
	defer app.stateMu.Unlock()
	app.releasing = true
}

// Done returns a channel closed when the current run ends. When the
// application is not running the channel is already closed.
func (app *Application) Done() <-chan struct{} {
	app.stateMu.Lock()
	defer app.stateMu.Unlock()
	if app.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return app.done
}

// Wait blocks until the current run ends or ctx is done. It returns the
// abort error when the run ended in an abort.
func (app *Application) Wait(ctx context.Context) error {
	select {
	case <-app.Done():
		return app.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error the application aborted with, if any.
func (app *Application) Err() error {
	app.stateMu.Lock()
	defer app.stateMu.Unlock()
	if !app.aborted {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrAborted, app.abortErr)
}

// Run starts the application and blocks until ctx is done, then stops it.
// It also returns when the application is stopped from elsewhere.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		app.logger.Info("Context done, shutting down", "reason", context.Cause(ctx))
		return app.Stop(context.WithoutCancel(ctx))
	case <-app.Done():
		return app.Err()
	}
}

// Attach is not supported. Processes embed the application with Start and
// Stop, or with Run and their own signal handling.
func (app *Application) Attach(ctx context.Context) error {
	return fmt.Errorf("%w: attach to the process with Run or Start/Stop", ErrNotImplemented)
}

// registerHealthChecks adds one check per service. Services implementing
// health.Checker report for themselves; the others report their status.
func (app *Application) registerHealthChecks(ctx context.Context) {
	app.health.Reset()
	for _, reg := range app.services.Registrations() {
		checker, ok := reg.Instance.(health.Checker)
		if !ok {
			checker = app.statusCheck(reg.Token)
		}
		if err := app.health.RegisterCheck(ctx, checker); err != nil {
			app.logger.Warn("Health check not registered", "service", reg.Name(), "error", err)
		}
	}
}

func (app *Application) statusCheck(token container.Token) health.Checker {
	return health.NewCheck(token.String(), func(ctx context.Context) (*health.CheckResult, error) {
		entry, ok := app.services.Status(token)
		if !ok {
			return &health.CheckResult{Status: health.StatusUnknown}, nil
		}

		result := &health.CheckResult{Message: string(entry.Status), Error: entry.LastError}
		switch entry.Status {
		case registry.ServiceStatusActive:
			result.Status = health.StatusHealthy
		case registry.ServiceStatusError:
			result.Status = health.StatusCritical
		default:
			result.Status = health.StatusWarning
		}
		return result, nil
	})
}
