// Package modkit provides a lifecycle orchestrator for modular,
// dependency-injected server processes.
//
// An application is a tree of modules. Each module may import child modules,
// declare services (components with Start/Stop) and declare controllers
// (components whose methods carry attributes). Modules, services and
// controllers are declared by type token and resolved through a
// container.Resolver, so each resolves to one instance per application.
//
// Basic usage:
//
//	app, err := modkit.NewApplication(
//		modkit.WithName("billing"),
//		modkit.WithImports(container.TypeOf[*payments.Module]()),
//		modkit.WithServices(container.TypeOf[*billing.Worker]()),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := app.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package modkit

import (
	"context"

	"github.com/GoCodeAlone/modkit/container"
)

// Module represents a unit of composition in the application tree.
//
// A module is identified by its resolved instance, so it must be a comparable
// value (typically a pointer). The same module imported by several parents is
// imported once.
type Module interface {
	// Name returns a descriptive identifier used in logs, errors and events.
	//
	// Example: "database", "auth", "httpserver"
	Name() string
}

// ImportAware is implemented by modules that import child modules.
// Children are imported, registered and booted before their parent.
type ImportAware interface {
	// Imports returns the tokens of the child modules, in import order.
	//
	// Example:
	//   func (m *WebModule) Imports() []container.Token {
	//       return []container.Token{
	//           container.TypeOf[*database.Module](),
	//           container.TypeOf[*auth.Module](),
	//       }
	//   }
	Imports() []container.Token
}

// ServiceAware is implemented by modules that contribute services.
type ServiceAware interface {
	// Services returns the tokens of the module's services in declaration
	// order. Each token must resolve to a value implementing Service.
	Services() []container.Token
}

// ControllerAware is implemented by modules that contribute controllers.
type ControllerAware interface {
	// Controllers returns the tokens of the module's controllers in
	// declaration order.
	Controllers() []container.Token
}

// PreBootHook is implemented by services that need to run before any
// service of their module starts.
type PreBootHook interface {
	BeforeModuleBoot(ctx context.Context) error
}

// BootHook is implemented by modules and services that need to run once
// their module has finished starting.
//
// For a service, OnModuleBoot runs after every service of its module has
// started. For a module, it runs in the module pass that follows the service
// phase: children before parents, the root module last.
type BootHook interface {
	OnModuleBoot(ctx context.Context) error
}

// PreShutdownHook is implemented by services that need to run before any
// service of their module stops.
type PreShutdownHook interface {
	BeforeModuleShutdown(ctx context.Context) error
}

// ShutdownHook is implemented by modules and services that need to run once
// their module has finished stopping.
type ShutdownHook interface {
	OnModuleShutdown(ctx context.Context) error
}

// moduleName returns a printable name for m.
func moduleName(m Module) string {
	if m == nil {
		return "<nil>"
	}
	return m.Name()
}
