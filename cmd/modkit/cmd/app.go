package cmd

import (
	"fmt"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/container"
	"github.com/GoCodeAlone/modkit/modules/configwatcher"
	"github.com/GoCodeAlone/modkit/modules/eventlogger"
	"github.com/GoCodeAlone/modkit/modules/scheduler"
	"github.com/GoCodeAlone/modkit/modules/statusserver"
)

// NewApplication builds the hosted application from cfg. The module configs
// are provided to the container so the module services pick them up.
func NewApplication(cfg *FileConfig, opts ...modkit.Option) (*modkit.Application, error) {
	c := container.New()
	for _, v := range []any{&cfg.Scheduler, &cfg.Status, &cfg.Watch, &cfg.Events} {
		if err := c.ProvideValue(v); err != nil {
			return nil, fmt.Errorf("provide %T: %w", v, err)
		}
	}

	base := []modkit.Option{
		modkit.WithConfig(cfg.App),
		modkit.WithContainer(c),
		modkit.WithImports(
			container.TypeOf[*scheduler.Module](),
			container.TypeOf[*statusserver.Module](),
			container.TypeOf[*configwatcher.Module](),
			container.TypeOf[*eventlogger.Module](),
		),
	}
	return modkit.NewApplication(append(base, opts...)...)
}
