package modkit

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/modkit/container"
)

// Application errors
var (
	// Module import errors
	ErrCircularImport      = errors.New("circular module import detected")
	ErrImportDepthExceeded = errors.New("module import depth exceeded")
	ErrNotAModule          = errors.New("resolved import is not a module")
	ErrModuleNotComparable = errors.New("module type is not comparable")
	ErrRootAlreadyImported = errors.New("a different root module was already imported")
	ErrModuleNotImported   = errors.New("module was not imported")
	ErrNilModule           = errors.New("module is nil")

	// Service errors
	ErrNotAService         = errors.New("resolved value does not implement Service")
	ErrServiceNotResolved  = errors.New("service has not been resolved")
	ErrServiceNotFound     = errors.New("service not found")
	ErrNotAController      = errors.New("resolved controller is nil")
	ErrControllerNotLoaded = errors.New("controller has not been resolved")

	// Dispatch errors
	ErrRequestHandlerNotFound  = errors.New("no handler registered for request")
	ErrDuplicateRequestHandler = errors.New("request handler already registered")
	ErrEventManagerNotReady    = errors.New("event manager is not initialized")

	// Application errors
	ErrNotImplemented     = errors.New("not implemented")
	ErrAborted            = errors.New("application aborted")
	ErrApplicationAborted = errors.New("application was aborted and cannot be started")
	ErrInvalidAbortPolicy = errors.New("invalid abort policy")
	ErrInvalidOption      = errors.New("invalid application option")

	// Observer errors
	ErrObserverNil        = errors.New("observer is nil")
	ErrObserverIDRequired = errors.New("observer id is required")
	ErrInvalidEvent       = errors.New("invalid cloud event")
)

// ResolutionError is returned when the container cannot satisfy a
// dependency of a module, service, controller or dispatched method.
type ResolutionError = container.ResolutionError

// ImportError reports a module import that could not be resolved.
type ImportError struct {
	Module string
	Import container.Token
	Err    error
}

func (e *ImportError) Error() string {
	if e.Import == nil {
		return fmt.Sprintf("import module %s: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("import %s into module %s: %v", e.Import, e.Module, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// Hook names used in lifecycle errors and logs.
const (
	HookBeforeModuleBoot     = "BeforeModuleBoot"
	HookStart                = "Start"
	HookOnModuleBoot         = "OnModuleBoot"
	HookBeforeModuleShutdown = "BeforeModuleShutdown"
	HookStop                 = "Stop"
	HookOnModuleShutdown     = "OnModuleShutdown"
)

// ServiceStartError reports a service whose Start or boot hooks failed.
type ServiceStartError struct {
	Module  string
	Service string
	Hook    string
	Err     error
}

func (e *ServiceStartError) Error() string {
	return fmt.Sprintf("start service %s of module %s: %s: %v", e.Service, e.Module, e.Hook, e.Err)
}

func (e *ServiceStartError) Unwrap() error {
	return e.Err
}

// ServiceStopError reports a service whose Stop or shutdown hooks failed.
type ServiceStopError struct {
	Module  string
	Service string
	Hook    string
	Err     error
}

func (e *ServiceStopError) Error() string {
	return fmt.Sprintf("stop service %s of module %s: %s: %v", e.Service, e.Module, e.Hook, e.Err)
}

func (e *ServiceStopError) Unwrap() error {
	return e.Err
}

// ModuleHookError reports a failing module boot or shutdown hook.
type ModuleHookError struct {
	Module string
	Hook   string
	Err    error
}

func (e *ModuleHookError) Error() string {
	return fmt.Sprintf("module %s: %s: %v", e.Module, e.Hook, e.Err)
}

func (e *ModuleHookError) Unwrap() error {
	return e.Err
}
