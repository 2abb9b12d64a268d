// Package scheduler runs recurring jobs on cron schedules.
//
// Import the module to add the scheduler service to an application:
//
//	app, err := modkit.NewApplication(
//		modkit.WithImports(container.TypeOf[*scheduler.Module]()),
//		modkit.WithControllers(container.TypeOf[*ReportController]()),
//	)
//
// Controller methods opt in with the Cron attribute:
//
//	func (c *ReportController) DeclareAttributes(d *attribute.Declarations) {
//		d.Method("Nightly", scheduler.Cron{Spec: "0 2 * * *"})
//	}
//
// Jobs can also be added directly with Scheduler.Schedule. Standard
// five-field specs and descriptors such as "@every 1m" are accepted; enable
// Config.WithSeconds for a leading seconds field.
package scheduler

import (
	"github.com/GoCodeAlone/modkit/container"
)

// Cron schedules a controller method. Name defaults to the method's
// qualified name.
type Cron struct {
	Spec string
	Name string
}

// AttributeName implements attribute.Attribute.
func (Cron) AttributeName() string { return "Cron" }

// Module provides the Scheduler service.
type Module struct{}

// Name implements modkit.Module.
func (*Module) Name() string { return "scheduler" }

// Services implements modkit.ServiceAware.
func (*Module) Services() []container.Token {
	return []container.Token{container.TypeOf[*Scheduler]()}
}
