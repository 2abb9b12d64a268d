package modkit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/GoCodeAlone/modkit/container"
	"github.com/GoCodeAlone/modkit/logging"
)

// Option configures an Application.
type Option func(*Application) error

// WithName sets the application name used in logs and event sources.
func WithName(name string) Option {
	return func(app *Application) error {
		app.cfg.Name = name
		return nil
	}
}

// WithConfig applies cfg. Fields set by later options win.
func WithConfig(cfg Config) Option {
	return func(app *Application) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOption, err)
		}
		if cfg.Name != "" {
			app.cfg.Name = cfg.Name
		}
		if cfg.LogLevel != "" {
			app.cfg.LogLevel = cfg.LogLevel
		}
		if cfg.AbortPolicy != "" {
			app.cfg.AbortPolicy = cfg.AbortPolicy
		}
		if cfg.ModeVariable != "" {
			app.cfg.ModeVariable = cfg.ModeVariable
		}
		if cfg.EnvFile != "" {
			app.cfg.EnvFile = cfg.EnvFile
		}
		return nil
	}
}

// WithLogger sets the logger. Without it a zap logger is built at the
// configured level, or at DefaultLogLevel.
func WithLogger(logger Logger) Option {
	return func(app *Application) error {
		if logger == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidOption)
		}
		app.logger = logger
		return nil
	}
}

// WithLogLevel overrides the level of the default logger.
func WithLogLevel(level logging.Level) Option {
	return func(app *Application) error {
		app.cfg.LogLevel = level.String()
		return nil
	}
}

// WithContainer uses c instead of a new container. Providers registered on
// c before the application starts are visible to modules and services.
func WithContainer(c *container.Container) Option {
	return func(app *Application) error {
		if c == nil {
			return fmt.Errorf("%w: container is nil", ErrInvalidOption)
		}
		app.container = c
		return nil
	}
}

// WithAttributeRegistry sets where controller attributes are read from.
func WithAttributeRegistry(r AttributeRegistry) Option {
	return func(app *Application) error {
		if r == nil {
			return fmt.Errorf("%w: attribute registry is nil", ErrInvalidOption)
		}
		app.attributes = r
		return nil
	}
}

// WithImports adds modules imported by the application's root module.
func WithImports(tokens ...container.Token) Option {
	return func(app *Application) error {
		app.imports = append(app.imports, tokens...)
		return nil
	}
}

// WithServices adds services owned by the root module.
func WithServices(tokens ...container.Token) Option {
	return func(app *Application) error {
		app.serviceTokens = append(app.serviceTokens, tokens...)
		return nil
	}
}

// WithControllers adds controllers owned by the root module.
func WithControllers(tokens ...container.Token) Option {
	return func(app *Application) error {
		app.controllerTokens = append(app.controllerTokens, tokens...)
		return nil
	}
}

// WithBootHook adds a function run as the root module's OnModuleBoot, after
// every service and every imported module has booted.
func WithBootHook(fn func(ctx context.Context) error) Option {
	return func(app *Application) error {
		if fn != nil {
			app.bootHooks = append(app.bootHooks, fn)
		}
		return nil
	}
}

// WithShutdownHook adds a function run as the root module's
// OnModuleShutdown.
func WithShutdownHook(fn func(ctx context.Context) error) Option {
	return func(app *Application) error {
		if fn != nil {
			app.shutdownHooks = append(app.shutdownHooks, fn)
		}
		return nil
	}
}

// WithAbortPolicy selects whether an abort exits the process or returns an
// error.
func WithAbortPolicy(policy AbortPolicy) Option {
	return func(app *Application) error {
		if !policy.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidAbortPolicy, policy)
		}
		app.cfg.AbortPolicy = policy
		return nil
	}
}

// WithExitFunc replaces os.Exit for AbortTerminate.
func WithExitFunc(exit func(code int)) Option {
	return func(app *Application) error {
		if exit == nil {
			return fmt.Errorf("%w: exit func is nil", ErrInvalidOption)
		}
		app.exit = exit
		return nil
	}
}

// WithModeVariable names the environment variable Mode reads.
func WithModeVariable(name string) Option {
	return func(app *Application) error {
		if name == "" {
			return fmt.Errorf("%w: mode variable is empty", ErrInvalidOption)
		}
		app.cfg.ModeVariable = name
		return nil
	}
}

// WithObserver registers an observer for the given event types, or for
// every event when none are given.
func WithObserver(observer Observer, eventTypes ...string) Option {
	return func(app *Application) error {
		return app.RegisterObserver(observer, eventTypes...)
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(app *Application) error {
		app.tel.metrics = m
		return nil
	}
}

// WithTracerProvider sets the provider lifecycle spans are created from.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(app *Application) error {
		if tp == nil {
			return fmt.Errorf("%w: tracer provider is nil", ErrInvalidOption)
		}
		app.tel.tracer = tp.Tracer(instrumentationName)
		return nil
	}
}
