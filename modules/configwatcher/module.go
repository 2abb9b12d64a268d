// Package configwatcher watches configuration files and publishes
// modkit.EventTypeConfigChanged events when they change.
package configwatcher

import (
	"github.com/GoCodeAlone/modkit/container"
)

// Module provides the Watcher service.
type Module struct{}

// Name implements modkit.Module.
func (*Module) Name() string { return "configwatcher" }

// Services implements modkit.ServiceAware.
func (*Module) Services() []container.Token {
	return []container.Token{container.TypeOf[*Watcher]()}
}
