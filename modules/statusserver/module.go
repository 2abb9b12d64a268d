// Package statusserver exposes the application lifecycle over HTTP.
//
// Routes, relative to Config.BasePath:
//
//	GET /status           application state, modules, services and transitions
//	GET /healthz          aggregated health, 503 unless running and healthy
//	GET /healthz/{check}  a single health check
package statusserver

import (
	"github.com/GoCodeAlone/modkit/container"
)

// Module provides the status Server service.
type Module struct{}

// Name implements modkit.Module.
func (*Module) Name() string { return "statusserver" }

// Services implements modkit.ServiceAware.
func (*Module) Services() []container.Token {
	return []container.Token{container.TypeOf[*Server]()}
}
